// Package admin implements the operator command line: account registration,
// schema migration and encryption key generation.
package admin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/cryptox"
	"github.com/dmitrijs2005/poikeeper/internal/server/models"
)

const usage = `usage: admin <command> [flags]

commands:
  register      create an operator account
  migrate       apply database migrations
  generate-key  print a new encryption key`

// ErrUsage is returned for unknown or missing commands.
var ErrUsage = errors.New(usage)

// Registrar creates operator accounts.
type Registrar interface {
	Register(ctx context.Context, badgeNum, password string) (*models.User, error)
}

// Backend is opened lazily, only by commands that need the database.
type Backend struct {
	Users Registrar
	Close func() error
}

type App struct {
	reader *bufio.Reader
	out    io.Writer
	open   func(ctx context.Context) (*Backend, error)
}

func NewApp(in io.Reader, out io.Writer, open func(ctx context.Context) (*Backend, error)) *App {
	return &App{reader: bufio.NewReader(in), out: out, open: open}
}

// Run executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "generate-key":
		_, err := fmt.Fprintln(a.out, cryptox.GenerateKey())
		return err
	case "migrate":
		return a.withBackend(ctx, func(*Backend) error {
			_, err := fmt.Fprintln(a.out, "Migrations applied")
			return err
		})
	case "register":
		return a.withBackend(ctx, func(b *Backend) error {
			return a.register(ctx, b)
		})
	case "help", "-h", "--help":
		_, err := fmt.Fprintln(a.out, usage)
		return err
	default:
		return ErrUsage
	}
}

// withBackend opens the backend, which migrates the schema, and runs fn.
func (a *App) withBackend(ctx context.Context, fn func(*Backend) error) (err error) {
	b, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(b)
}

func (a *App) register(ctx context.Context, b *Backend) error {
	badge, err := GetSimpleText(a.reader, "Enter badge number", a.out)
	if err != nil {
		return err
	}
	if badge == "" {
		return errors.New("badge number is required")
	}

	password, err := GetPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := GetPassword(a.out, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if len(password) == 0 {
		return errors.New("password is required")
	}
	if !bytes.Equal(password, confirm) {
		return errors.New("passwords do not match")
	}

	u, err := b.Users.Register(ctx, badge, string(password))
	if err != nil {
		if msg := common.Message(err); msg != "" {
			return errors.New(msg)
		}
		return err
	}

	_, err = fmt.Fprintf(a.out, "Registered operator %s (id=%d)\n", u.BadgeNum, u.ID)
	return err
}
