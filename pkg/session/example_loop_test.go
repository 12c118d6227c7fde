package session_test

import (
	"fmt"
	"io"
	"log"

	"github.com/MatthiasKunnen/sessionlock/pkg/session"
)

type printController struct{}

func (printController) RequestUnlock() {
	fmt.Println("unlock requested")
}

func ExampleLoop() {
	loop := session.NewLoop(printController{}, session.Config{
		Logger: log.New(io.Discard, "", 0),
	})

	loop.Dispatch(session.Route(session.SurfaceOpenedEvent{ID: 1}))
	loop.Dispatch(session.IncrementRequested{ID: 1})
	loop.Dispatch(session.TextChanged{ID: 1, Text: "hello"})

	state, _ := loop.Render(1)
	fmt.Println(state.Counter, state.Text)

	loop.Dispatch(session.UnlockRequested{})
	loop.Dispatch(session.UnlockRequested{})
	fmt.Println(loop.Phase())

	// Output:
	// 1 hello
	// unlock requested
	// unlocking
}
