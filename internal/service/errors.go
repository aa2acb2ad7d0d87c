package service

import (
	"errors"

	"custodial-wallet-engine/pkg/apperror"
)

// dbError keeps AppErrors raised by a repository and wraps anything else as SYS_001.
func dbError(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.ErrDatabaseError(err)
}
