package workload

import "errors"

var (
	errEmptyCommand  = errors.New("command is empty")
	errTooManyTokens = errors.New("command has too many tokens")
	errTokenTooLong  = errors.New("command token exceeds path max")
)
