package core

var _ Sweeper = (*Service)(nil)
