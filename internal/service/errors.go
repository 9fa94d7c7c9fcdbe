package service

import "errors"

// ErrValidation 入参不合法，调用方的问题，没有任何状态变化
var ErrValidation = errors.New("validation failed")
