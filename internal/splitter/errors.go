package splitter

import "errors"

// ErrUnknownDelimiterType indicates a delimiter type name other than "normal" or "row".
var ErrUnknownDelimiterType = errors.New("unknown delimiter type")

// ErrUnknownLineEnding indicates a line ending name other than "platform", "lf", "cr" or "crlf".
var ErrUnknownLineEnding = errors.New("unknown line ending")
