package channel_test

import (
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/airyai/duplexrpc/channel"
)

// newPipe creates a pair of connected in-memory channels using the specified
// framing discipline. Sends to client will be received by server, and vice
// versa. newPipe will panic if framing == nil.
func newPipe(framing channel.Framing) (client, server channel.Channel) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	client = framing(cr, cw)
	server = framing(sr, sw)
	return
}

func testSendRecv(t *testing.T, s, r channel.Channel, msg string) {
	t.Helper()
	var wg sync.WaitGroup
	var sendErr, recvErr error
	var data []byte

	wg.Add(2)
	go func() {
		defer wg.Done()
		data, recvErr = r.Recv()
	}()
	go func() {
		defer wg.Done()
		sendErr = s.Send([]byte(msg))
	}()
	wg.Wait()

	if sendErr != nil {
		t.Errorf("Send(%q): unexpected error: %v", msg, sendErr)
	}
	if recvErr != nil {
		t.Errorf("Recv(): unexpected error: %v", recvErr)
	}
	if got := string(data); got != msg {
		t.Errorf("Recv():\ngot  %#q\nwant %#q", got, msg)
	}
}

const message1 = `{"id":1,"method":"echo","params":["Full plate and packing steel"]}`
const message2 = `{"id":1,"result":{"slogan":"Jump on your sword, evil!"}}`

func TestDirect(t *testing.T) {
	lhs, rhs := channel.Direct()
	defer lhs.Close()
	defer rhs.Close()

	testSendRecv(t, lhs, rhs, message1)
	testSendRecv(t, rhs, lhs, message2)
}

func TestDirectClosed(t *testing.T) {
	lhs, rhs := channel.Direct()
	defer rhs.Close()
	lhs.Close() // immediately

	if err := lhs.Send([]byte("nonsense")); err == nil {
		t.Error("Send on closed channel did not fail")
	} else {
		t.Logf("Send correctly failed: %v", err)
	}
}

var messages = []string{
	message1,
	message2,
	`{"id":2,"method":"echo","params":["null"]}`,
	`{"id":3,"method":"echo","params":[17]}`,
	`{"id":4,"method":"echo","params":["applejack"]}`,
	`{"id":5,"method":"echo","params":[]}`,

	// Include a long message to ensure size-dependent cases get exercised.
	`{"id":6,"method":"echo","params":[` + strings.Repeat(`"ABCDefghIJKLmnopQRSTuvwxYZ!",`, 8000) + `"END"]}`,
}

func TestLineFraming(t *testing.T) {
	lhs, rhs := newPipe(channel.Line)
	defer lhs.Close()
	defer rhs.Close()

	for i, msg := range messages {
		n := strconv.Itoa(i + 1)
		t.Run("LR-"+n, func(t *testing.T) {
			testSendRecv(t, lhs, rhs, msg)
		})
		t.Run("RL-"+n, func(t *testing.T) {
			testSendRecv(t, rhs, lhs, msg)
		})
	}
}

func TestLineRejectsEmbeddedNewline(t *testing.T) {
	lhs, rhs := newPipe(channel.Line)
	defer lhs.Close()
	defer rhs.Close()

	if err := lhs.Send([]byte("first\nsecond")); err == nil {
		t.Error("Send with an embedded newline did not fail")
	}
}
