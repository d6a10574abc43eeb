package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

var ErrDuplicateNodeName = errors.New("a node with the same name already exists in this folder")
var ErrNodeNotFound = errors.New("node not found or not owned by the caller")
var ErrParentNotFound = errors.New("parent folder does not exist")
var ErrFolderNotEmpty = errors.New("folder is not empty")
