package definitions

import "time"

const (
	DefaultServer  = "tcp://127.0.0.1:5555"
	DefaultTimeout = 5 * time.Second
)

// Global settings, read from diskctl flags
var (
	Server  string
	Token   string
	Timeout time.Duration
	Debug   bool
)
