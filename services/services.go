// Package services implements the request, chat and presence lifecycle on
// top of GORM. Every operation takes the acting principal explicitly; none
// of them reads ambient session state.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/realtime"
	"github.com/vnkhanh/dating-server/utils"
)

// Deps are shared by every service.
type Deps struct {
	DB     *gorm.DB
	Hub    *realtime.Hub
	Logger *slog.Logger
	Now    func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Hub == nil {
		d.Hub = realtime.NewHub()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Snapshot receives the full current result of a live query, or the error
// that prevented computing it.
type Snapshot[T any] func(items T, err error)

func validateInput(in any) error {
	if err := utils.Validate.Struct(in); err != nil {
		return apperrors.ErrValidation(err)
	}
	return nil
}

// lookupErr turns a missing row into notFound and anything else into a
// store error.
func lookupErr(op string, err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return apperrors.ErrStore(op, err)
}

// isAppError reports whether err already carries a domain code.
func isAppError(err error) bool {
	var ae *apperrors.AppError
	return errors.As(err, &ae)
}

func txErr(op string, err error) error {
	if err == nil || isAppError(err) {
		return err
	}
	return apperrors.ErrStore(op, err)
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func background() context.Context { return context.Background() }
