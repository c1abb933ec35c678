/*
NAME
  errors.go

DESCRIPTION
  errors.go contains the error kinds surfaced by source construction and
  frame delivery.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package source

import (
	"github.com/pkg/errors"
)

// ErrCanceled is returned when the progress callback stops indexing.
var ErrCanceled = errors.New("indexing canceled by user")

// ArgumentError reports an invalid numeric or enum input.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return e.Msg }
