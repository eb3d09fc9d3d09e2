package client

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/wstest"
)

const testAddress = "ws://game.test/ws"

// newTestClient creates a client on an in-memory provider and returns the socket it opened
func newTestClient(t *testing.T, maxMessageSize int64) (*EventClient, *wstest.Socket) {
	t.Helper()

	provider := wstest.NewProvider()
	client, err := NewEventClient(testAddress, &Config{
		Provider:       provider,
		MaxMessageSize: maxMessageSize,
	})
	require.NoError(t, err)

	socket := provider.Last()
	require.NotNil(t, socket)
	return client, socket
}

// TestNewEventClient tests the initial state of a fresh client
func TestNewEventClient(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)

	assert.Equal(t, wsockets.StatusConnecting, client.Status())
	assert.Equal(t, testAddress, client.URL())
	assert.Len(t, client.ID(), 36)
	assert.Equal(t, testAddress, socket.Address())
	assert.Empty(t, socket.Sent())
	assert.Zero(t, socket.CloseCalls())
}

// TestNewEventClientRefused tests that a provider refusal becomes a ConnectionError
func TestNewEventClientRefused(t *testing.T) {
	t.Parallel()

	refused := errors.New("no sockets left")

	tests := []struct {
		name    string
		address string
		reject  error
		wantErr error
	}{
		{
			name:    "invalid address",
			address: "localhost:8080",
			wantErr: wsockets.ErrInvalidAddress,
		},
		{
			name:    "provider refusal",
			address: testAddress,
			reject:  refused,
			wantErr: refused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider := wstest.NewProvider()
			provider.RejectWith(tt.reject)

			client, err := NewEventClient(tt.address, &Config{Provider: provider})
			require.Error(t, err)
			assert.Nil(t, client)
			assert.ErrorIs(t, err, tt.wantErr)

			var connErr *wsockets.ConnectionError
			require.ErrorAs(t, err, &connErr)
			assert.Equal(t, tt.address, connErr.Address)
			assert.Empty(t, provider.Sockets())
		})
	}
}

// TestConnectThenSend tests that the connection callback can send right away
func TestConnectThenSend(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)

	calls := 0
	client.SetOnConnection(func(conn wsockets.Conn) {
		calls++
		assert.Equal(t, wsockets.StatusConnected, conn.Status())
		assert.NoError(t, conn.SendString("hello"))
		assert.NoError(t, conn.SendBinary([]byte{20}))
	})

	socket.Open()

	assert.Equal(t, 1, calls)
	assert.Equal(t, wsockets.StatusConnected, client.Status())

	sent := socket.Sent()
	require.Len(t, sent, 2)
	assert.True(t, sent[0].Equal(wsockets.NewTextMessage("hello")))
	assert.True(t, sent[1].Equal(wsockets.NewBinaryMessage([]byte{20})))
}

// TestErrorThenClose tests that a close after an error still ends disconnected
func TestErrorThenClose(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)

	var order []string
	client.SetOnError(func(err error) {
		order = append(order, "error:"+err.Error())
	})
	client.SetOnClose(func() {
		order = append(order, "close")
	})

	socket.Error(errors.New("connection refused"))
	assert.Equal(t, wsockets.StatusError, client.Status())

	socket.Closed()
	assert.Equal(t, wsockets.StatusDisconnected, client.Status())
	assert.Equal(t, []string{"error:connection refused", "close"}, order)
}

// TestSendRequiresConnected tests that sends outside StatusConnected never reach the socket
func TestSendRequiresConnected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events func(s *wstest.Socket)
		want   wsockets.ConnectionStatus
	}{
		{
			name:   "connecting",
			events: func(s *wstest.Socket) {},
			want:   wsockets.StatusConnecting,
		},
		{
			name: "error",
			events: func(s *wstest.Socket) {
				s.Open()
				s.Error(errors.New("reset"))
			},
			want: wsockets.StatusError,
		},
		{
			name: "disconnected",
			events: func(s *wstest.Socket) {
				s.Open()
				s.Closed()
			},
			want: wsockets.StatusDisconnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, socket := newTestClient(t, DefaultMaxMessageSize)
			tt.events(socket)
			require.Equal(t, tt.want, client.Status())

			for _, err := range []error{
				client.SendString("hello"),
				client.SendBinary([]byte{1, 2, 3}),
			} {
				require.Error(t, err)
				assert.ErrorIs(t, err, wsockets.ErrInvalidState)

				var stateErr *wsockets.StateError
				require.ErrorAs(t, err, &stateErr)
				assert.Equal(t, tt.want, stateErr.Status)
			}

			assert.Empty(t, socket.Sent())
		})
	}
}

// TestSendFailurePropagates tests that socket errors reach the caller
func TestSendFailurePropagates(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)
	socket.Open()
	socket.FailSendsWith(wsockets.ErrSendBufferFull)

	err := client.SendString("hello")
	assert.ErrorIs(t, err, wsockets.ErrSendBufferFull)
	assert.NotErrorIs(t, err, wsockets.ErrInvalidState)
	assert.Equal(t, wsockets.StatusConnected, client.Status())
}

// TestCloseIsIdempotent tests that only the first close reaches the socket
func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		opened bool
	}{
		{name: "while connecting", opened: false},
		{name: "while connected", opened: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, socket := newTestClient(t, DefaultMaxMessageSize)
			if tt.opened {
				socket.Open()
			}

			closes := 0
			client.SetOnClose(func() { closes++ })

			require.NoError(t, client.Close())
			require.NoError(t, client.Close())
			assert.Equal(t, 1, socket.CloseCalls())

			socket.Closed()
			require.NoError(t, client.Close())

			assert.Equal(t, 1, socket.CloseCalls())
			assert.Equal(t, 1, closes)
			assert.Equal(t, wsockets.StatusDisconnected, client.Status())
		})
	}
}

// TestCallbackReplacement tests that only the latest callback fires
func TestCallbackReplacement(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)
	socket.Open()

	var first, second []wsockets.Message
	client.SetOnMessage(func(_ wsockets.Conn, msg wsockets.Message) {
		first = append(first, msg)
	})
	socket.Text("a")

	client.SetOnMessage(func(_ wsockets.Conn, msg wsockets.Message) {
		second = append(second, msg)
	})
	socket.Text("b")
	socket.Text("c")

	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].Text())
	require.Len(t, second, 2)
	assert.Equal(t, "b", second[0].Text())
	assert.Equal(t, "c", second[1].Text())

	client.SetOnMessage(nil)
	socket.Text("d")
	assert.Len(t, second, 2)
}

// TestNoCallbacks tests that events without registered callbacks still drive the state
func TestNoCallbacks(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)

	socket.Open()
	socket.Text("ignored")
	socket.Error(errors.New("ignored"))
	socket.Closed()

	assert.Equal(t, wsockets.StatusDisconnected, client.Status())
}

// TestEventsAfterDisconnect tests that nothing is delivered once disconnected
func TestEventsAfterDisconnect(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)

	var events []string
	client.SetOnConnection(func(wsockets.Conn) { events = append(events, "open") })
	client.SetOnMessage(func(wsockets.Conn, wsockets.Message) { events = append(events, "message") })
	client.SetOnError(func(error) { events = append(events, "error") })
	client.SetOnClose(func() { events = append(events, "close") })

	socket.Open()
	socket.Closed()

	socket.Open()
	socket.Text("late")
	socket.Error(errors.New("late"))
	socket.Closed()

	assert.Equal(t, []string{"open", "close"}, events)
	assert.Equal(t, wsockets.StatusDisconnected, client.Status())
}

// TestMessageBeforeOpen tests that a message arriving while connecting is still delivered
func TestMessageBeforeOpen(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)

	var got []wsockets.Message
	client.SetOnMessage(func(_ wsockets.Conn, msg wsockets.Message) {
		got = append(got, msg)
	})

	socket.Text("early")

	require.Len(t, got, 1)
	assert.Equal(t, wsockets.StatusConnecting, client.Status())
}

// TestRepeatedErrors tests that every error reaches the callback
func TestRepeatedErrors(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)
	socket.Open()

	errs := 0
	client.SetOnError(func(error) { errs++ })

	socket.Error(errors.New("first"))
	socket.Error(errors.New("second"))

	assert.Equal(t, 2, errs)
	assert.Equal(t, wsockets.StatusError, client.Status())

	// Sends stay refused once errored, even if the socket might still be usable
	assert.ErrorIs(t, client.SendString("x"), wsockets.ErrInvalidState)
}

// TestReassembly tests that every inbound frame shape decodes to one message
func TestReassembly(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0xAB}, 64*1024)

	tests := []struct {
		name  string
		limit int64
		frame wsockets.Frame
		want  wsockets.Message
	}{
		{
			name:  "text",
			frame: wsockets.Frame{Type: wsockets.TextMessage, Data: []byte("ping")},
			want:  wsockets.NewTextMessage("ping"),
		},
		{
			name:  "empty text",
			frame: wsockets.Frame{Type: wsockets.TextMessage, Data: nil},
			want:  wsockets.NewTextMessage(""),
		},
		{
			name:  "streamed text",
			frame: wsockets.Frame{Type: wsockets.TextMessage, Reader: bytes.NewReader([]byte("pong"))},
			want:  wsockets.NewTextMessage("pong"),
		},
		{
			name:  "binary",
			frame: wsockets.Frame{Type: wsockets.BinaryMessage, Data: []byte{1, 2, 3}},
			want:  wsockets.NewBinaryMessage([]byte{1, 2, 3}),
		},
		{
			name:  "streamed binary",
			frame: wsockets.Frame{Type: wsockets.BinaryMessage, Reader: iotest.OneByteReader(bytes.NewReader(payload))},
			want:  wsockets.NewBinaryMessage(payload),
		},
		{
			name:  "empty streamed binary",
			frame: wsockets.Frame{Type: wsockets.BinaryMessage, Reader: bytes.NewReader(nil)},
			want:  wsockets.NewBinaryMessage(nil),
		},
		{
			name:  "streamed binary with largest limit",
			limit: math.MaxInt64,
			frame: wsockets.Frame{Type: wsockets.BinaryMessage, Reader: bytes.NewReader([]byte{1, 2, 3})},
			want:  wsockets.NewBinaryMessage([]byte{1, 2, 3}),
		},
		{
			name:  "streamed text with largest limit",
			limit: math.MaxInt64,
			frame: wsockets.Frame{Type: wsockets.TextMessage, Reader: bytes.NewReader([]byte("pong"))},
			want:  wsockets.NewTextMessage("pong"),
		},
		{
			name:  "streamed binary without limit",
			limit: -1,
			frame: wsockets.Frame{Type: wsockets.BinaryMessage, Reader: bytes.NewReader(payload)},
			want:  wsockets.NewBinaryMessage(payload),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			limit := tt.limit
			if limit == 0 {
				limit = DefaultMaxMessageSize
			}
			client, socket := newTestClient(t, limit)
			socket.Open()

			var got []wsockets.Message
			client.SetOnMessage(func(_ wsockets.Conn, msg wsockets.Message) {
				got = append(got, msg)
			})

			socket.Frame(tt.frame)

			require.Len(t, got, 1)
			assert.Truef(t, got[0].Equal(tt.want), "got %v, want %v", got[0], tt.want)
		})
	}
}

// TestStreamedBuffersAreNotShared tests that pooled scratch buffers never leak into messages
func TestStreamedBuffersAreNotShared(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)
	socket.Open()

	var got []wsockets.Message
	client.SetOnMessage(func(_ wsockets.Conn, msg wsockets.Message) {
		got = append(got, msg)
	})

	socket.BinaryStream(bytes.NewReader([]byte{1, 1, 1}))
	socket.BinaryStream(bytes.NewReader([]byte{2, 2}))

	require.Len(t, got, 2)
	assert.Equal(t, []byte{1, 1, 1}, got[0].Bytes())
	assert.Equal(t, []byte{2, 2}, got[1].Bytes())
}

// TestReassemblyFailures tests that undecodable frames become error events
func TestReassemblyFailures(t *testing.T) {
	t.Parallel()

	readErr := errors.New("stream reset")

	tests := []struct {
		name    string
		limit   int64
		frame   wsockets.Frame
		wantErr error
	}{
		{
			name:    "binary over limit",
			limit:   4,
			frame:   wsockets.Frame{Type: wsockets.BinaryMessage, Data: []byte{1, 2, 3, 4, 5}},
			wantErr: wsockets.ErrMessageTooLarge,
		},
		{
			name:    "streamed binary over limit",
			limit:   4,
			frame:   wsockets.Frame{Type: wsockets.BinaryMessage, Reader: bytes.NewReader([]byte{1, 2, 3, 4, 5})},
			wantErr: wsockets.ErrMessageTooLarge,
		},
		{
			name:    "text over limit",
			limit:   2,
			frame:   wsockets.Frame{Type: wsockets.TextMessage, Data: []byte("abc")},
			wantErr: wsockets.ErrMessageTooLarge,
		},
		{
			name:    "stream read failure",
			limit:   DefaultMaxMessageSize,
			frame:   wsockets.Frame{Type: wsockets.BinaryMessage, Reader: iotest.ErrReader(readErr)},
			wantErr: readErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, socket := newTestClient(t, tt.limit)
			socket.Open()

			var errs []error
			messages := 0
			client.SetOnError(func(err error) { errs = append(errs, err) })
			client.SetOnMessage(func(wsockets.Conn, wsockets.Message) { messages++ })

			socket.Frame(tt.frame)

			require.Len(t, errs, 1)
			assert.ErrorIs(t, errs[0], tt.wantErr)
			assert.Zero(t, messages)
			assert.Equal(t, wsockets.StatusError, client.Status())
		})
	}
}

// TestExactLimitAccepted tests that a message of exactly the limit is delivered
func TestExactLimitAccepted(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, 4)
	socket.Open()

	var got []wsockets.Message
	client.SetOnMessage(func(_ wsockets.Conn, msg wsockets.Message) {
		got = append(got, msg)
	})

	socket.BinaryStream(bytes.NewReader([]byte{1, 2, 3, 4}))
	socket.Binary([]byte{5, 6, 7, 8})

	assert.Len(t, got, 2)
	assert.Equal(t, wsockets.StatusConnected, client.Status())
}

// TestReadLimitPassedToProvider tests that providers are asked to enforce the client limit
func TestReadLimitPassedToProvider(t *testing.T) {
	t.Parallel()

	for _, limit := range []int64{-1, 0, 16, DefaultMaxMessageSize, math.MaxInt64} {
		_, socket := newTestClient(t, limit)
		assert.Equal(t, limit, socket.ReadLimit())
	}
}

// TestSizeErrorFromProvider tests that a provider's size error is reported like any error
func TestSizeErrorFromProvider(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, 16)
	socket.Open()

	var errs []error
	client.SetOnError(func(err error) { errs = append(errs, err) })

	socket.Error(&wsockets.SizeError{Limit: 16})
	socket.Closed()

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], wsockets.ErrMessageTooLarge)
	assert.Equal(t, wsockets.StatusDisconnected, client.Status())
}

// TestUnknownFrameType tests that a frame of an unknown type is reported
func TestUnknownFrameType(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)
	socket.Open()

	var errs []error
	client.SetOnError(func(err error) { errs = append(errs, err) })

	socket.Frame(wsockets.Frame{Type: wsockets.MessageType(9), Data: []byte{1}})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), wsockets.ErrMsgUnexpectedFrame)
}

// TestReentrantCallbacks tests that callbacks may send and close through the Conn
func TestReentrantCallbacks(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)

	client.SetOnMessage(func(conn wsockets.Conn, msg wsockets.Message) {
		assert.NoError(t, conn.SendString("echo:"+msg.Text()))
		assert.NoError(t, conn.Close())
		assert.NoError(t, conn.Close())
	})

	closed := false
	client.SetOnClose(func() {
		closed = true
		assert.Equal(t, wsockets.StatusDisconnected, client.Status())
		assert.NoError(t, client.Close())
	})

	socket.Open()
	socket.Text("hi")

	sent := socket.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "echo:hi", sent[0].Text())
	assert.Equal(t, 1, socket.CloseCalls())

	socket.Closed()
	assert.True(t, closed)
}

// TestConcurrentUse tests the client from many goroutines at once
func TestConcurrentUse(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)
	socket.Open()

	var mu sync.Mutex
	received := 0
	client.SetOnMessage(func(wsockets.Conn, wsockets.Message) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				assert.NoError(t, client.SendString("out"))
				client.Status()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				socket.Text("in")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, socket.Sent(), workers*perWorker)
	assert.Equal(t, workers*perWorker, received)
}

// TestSerializedDispatch tests that a slow callback holds back later events
func TestSerializedDispatch(t *testing.T) {
	t.Parallel()

	client, socket := newTestClient(t, DefaultMaxMessageSize)
	socket.Open()

	inside := make(chan struct{})
	release := make(chan struct{})
	var order []string
	client.SetOnMessage(func(_ wsockets.Conn, msg wsockets.Message) {
		if msg.Text() == "slow" {
			close(inside)
			<-release
		}
		order = append(order, msg.Text())
	})

	done := make(chan struct{})
	go func() {
		socket.Text("slow")
		close(done)
	}()
	<-inside

	fast := make(chan struct{})
	go func() {
		socket.Text("fast")
		close(fast)
	}()

	close(release)
	<-done
	<-fast

	assert.Equal(t, []string{"slow", "fast"}, order)
}

// TestPresetCallbacks tests that callbacks from the config see the first events
func TestPresetCallbacks(t *testing.T) {
	t.Parallel()

	var events []string
	provider := wstest.NewProvider()
	client, err := NewEventClient(testAddress, &Config{
		Provider:     provider,
		OnConnection: func(wsockets.Conn) { events = append(events, "open") },
		OnMessage:    func(_ wsockets.Conn, msg wsockets.Message) { events = append(events, msg.Text()) },
		OnError:      func(error) { events = append(events, "error") },
		OnClose:      func() { events = append(events, "close") },
	})
	require.NoError(t, err)

	socket := provider.Last()
	socket.Open()
	socket.Text("first")

	client.SetOnMessage(func(wsockets.Conn, wsockets.Message) { events = append(events, "replaced") })
	socket.Text("second")
	socket.Error(errors.New("e"))
	socket.Closed()

	assert.Equal(t, []string{"open", "first", "replaced", "error", "close"}, events)
}

// TestDefaultConfig tests the fallback provider and message limit
func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.NotNil(t, cfg.Provider)
	assert.Equal(t, int64(DefaultMaxMessageSize), cfg.MaxMessageSize)

	var nilCfg *Config
	assert.NotNil(t, nilCfg.withDefaults().Provider)
	assert.NotNil(t, (&Config{}).withDefaults().Provider)
}
