// Package wsockets provides a client for a single WebSocket connection with two ways to consume it.
//
// The EventClient is event based and gives the most control: callbacks are registered for
// connection, message, error and close events and are invoked as the events arrive. The
// PollingClient is designed for code driven by a loop, such as a game tick or render loop:
// it buffers inbound messages and hands all of them over on each Receive call.
//
// # Event mode
//
//	import (
//	    "github.com/luciancaetano/wsockets"
//	    "github.com/luciancaetano/wsockets/ws"
//	)
//
//	client, err := ws.NewEventClient("wss://echo.example.com",
//	    ws.OnConnection(func(conn wsockets.Conn) {
//	        conn.SendString("Hello, World!")
//	        conn.SendBinary([]byte{20})
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	client.SetOnMessage(func(conn wsockets.Conn, msg wsockets.Message) {
//	    log.Printf("new message: %v", msg)
//	})
//	client.SetOnError(func(err error) {
//	    log.Printf("error: %v", err)
//	})
//	client.SetOnClose(func() {
//	    log.Print("connection closed")
//	})
//
// A nil error from the constructor does not mean the connection succeeded, only that
// the provider accepted the request. Status starts at StatusConnecting.
//
// Events may start before the constructor returns. Callbacks passed as options are
// installed first and see every event; the Set methods replace a slot afterwards.
//
// # Poll mode
//
//	client, err := ws.NewPollingClient("wss://echo.example.com")
//	if err != nil {
//	    return err
//	}
//
//	ticker := time.NewTicker(100 * time.Millisecond)
//	for range ticker.C {
//	    if client.Status() == wsockets.StatusConnected {
//	        client.SendString("Hello, World!")
//	    }
//	    // Receive returns every message since the previous call
//	    for _, msg := range client.Receive() {
//	        log.Printf("new message: %v", msg)
//	    }
//	}
//
// In poll mode errors and connect or close transitions are only visible through Status.
//
// # State machine
//
//	connecting   -> connected | error | disconnected
//	connected    -> error | disconnected
//	error        -> disconnected
//	disconnected    (terminal)
//
// An error followed by a close event still fires the close callback and ends in
// StatusDisconnected.
//
// # Providers
//
// The wire protocol is delegated to a Provider. The default provider is built on
// gorilla/websocket; coder/websocket and gobwas/ws based providers are also available,
// and the wstest package offers an in-memory provider whose events are fired by hand.
//
// # Sending
//
//   - SendString and SendBinary fail with an error matching ErrInvalidState unless the
//     status is StatusConnected, including while still connecting
//   - Sends are queued and never block; a full queue returns ErrSendBufferFull
//   - Close is idempotent and fire-and-forget
//
// # Concurrency
//
//   - Callbacks run one at a time, in the order the provider delivered the events
//   - Callbacks may call Status, SendString, SendBinary and Close on the Conn they receive
//   - Both clients are safe for use from multiple goroutines
package wsockets
