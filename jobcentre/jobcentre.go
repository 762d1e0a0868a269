// Package jobcentre is a job queue server speaking newline-delimited JSON.
// Clients put jobs into named queues, get the highest priority job from a
// set of queues, and delete or abort jobs. Jobs held by a client return to
// their queue when the client aborts them or disconnects.
package jobcentre

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
)

// ErrInvalidRequest marks a request that cannot be served.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one decoded client request. Only the fields of its kind are
// set.
type Request struct {
	Kind   string
	Queue  string
	Job    json.RawMessage
	Pri    uint64
	Queues []string
	Wait   bool
	ID     uint64
}

type wireRequest struct {
	Request *string         `json:"request"`
	Queue   *string         `json:"queue"`
	Job     json.RawMessage `json:"job"`
	Pri     *uint64         `json:"pri"`
	Queues  []string        `json:"queues"`
	Wait    bool            `json:"wait"`
	ID      *uint64         `json:"id"`
}

// ParseRequest decodes and validates one request line.
func ParseRequest(line []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(line, &w); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if w.Request == nil {
		return Request{}, fmt.Errorf("%w: missing request type", ErrInvalidRequest)
	}

	req := Request{Kind: *w.Request}
	switch req.Kind {
	case "put":
		if w.Queue == nil || w.Pri == nil || len(w.Job) == 0 || w.Job[0] != '{' {
			return Request{}, fmt.Errorf("%w: put needs queue, job object and pri", ErrInvalidRequest)
		}
		req.Queue, req.Job, req.Pri = *w.Queue, w.Job, *w.Pri
	case "get":
		if w.Queues == nil {
			return Request{}, fmt.Errorf("%w: get needs queues", ErrInvalidRequest)
		}
		req.Queues, req.Wait = w.Queues, w.Wait
	case "delete", "abort":
		if w.ID == nil {
			return Request{}, fmt.Errorf("%w: %s needs id", ErrInvalidRequest, req.Kind)
		}
		req.ID = *w.ID
	default:
		return Request{}, fmt.Errorf("%w: unknown request type %q", ErrInvalidRequest, req.Kind)
	}

	return req, nil
}

// Response is one reply line.
type Response struct {
	Status string          `json:"status"`
	ID     *uint64         `json:"id,omitempty"`
	Job    json.RawMessage `json:"job,omitempty"`
	Pri    *uint64         `json:"pri,omitempty"`
	Queue  string          `json:"queue,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func ok() Response    { return Response{Status: "ok"} }
func noJob() Response { return Response{Status: "no-job"} }

func failed(err error) Response {
	return Response{Status: "error", Error: err.Error()}
}

// Serve executes req on behalf of client.
func Serve(ctx context.Context, c *Centre, client uint64, req Request) (Response, error) {
	switch req.Kind {
	case "put":
		id := c.Put(req.Queue, req.Job, req.Pri)
		r := ok()
		r.ID = &id
		return r, nil
	case "get":
		job, err := c.Get(ctx, client, req.Queues, req.Wait)
		if err != nil {
			return Response{}, err
		}
		if job == nil {
			return noJob(), nil
		}
		r := ok()
		r.ID, r.Job, r.Pri, r.Queue = &job.ID, job.Body, &job.Pri, job.Queue
		return r, nil
	case "delete":
		if c.Delete(req.ID) {
			return ok(), nil
		}
		return noJob(), nil
	case "abort":
		switch c.Abort(client, req.ID) {
		case Aborted:
			return ok(), nil
		case NotHolding:
			return failed(fmt.Errorf("job %d is not held by this client", req.ID)), nil
		default:
			return noJob(), nil
		}
	default:
		return failed(ErrInvalidRequest), nil
	}
}

// Session is one client connection.
type Session struct {
	*tcpserver.BaseSession
	centre *Centre
}

// NewSessionFunc returns the session factory for tcpserver. All sessions
// share centre.
func NewSessionFunc(centre *Centre, log logger.Logger) tcpserver.NewSessionFunc {
	return func(id uint64, conn net.Conn) tcpserver.TCPServerSession {
		return &Session{BaseSession: tcpserver.NewBaseSession(id, conn, log), centre: centre}
	}
}

// Handle serves requests in order. Lines are read on a separate goroutine
// so that a disconnect during a waiting get ends the wait.
func (s *Session) Handle() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() {
		if n := s.centre.Release(s.ID()); n > 0 {
			s.Logger.Debug("released held jobs", logger.Field{Key: "count", Value: n})
		}
	}()

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		defer cancel()
		for {
			line, err := s.ReadLine()
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for line := range lines {
		var resp Response
		req, err := ParseRequest(line)
		if err != nil {
			resp = failed(err)
		} else if resp, err = Serve(ctx, s.centre, s.ID(), req); err != nil {
			return
		}

		out, _ := json.Marshal(resp)
		if err := s.Send(append(out, '\n')); err != nil {
			return
		}
	}
}
