package web

import "errors"

// ErrPanic wraps non-error panic values recovered by the middleware chain.
var ErrPanic = errors.New("recovered panic")
