package lockscreen

import (
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
)

// NewLogger returns a logger whose prefix carries name and a random session identifier, so the
// logs of consecutive lock sessions can be told apart.
func NewLogger(out io.Writer, name string) *log.Logger {
	return log.New(out, fmt.Sprintf("%s[%s] ", name, uuid.NewString()[:8]), log.LstdFlags|log.Lmsgprefix)
}
