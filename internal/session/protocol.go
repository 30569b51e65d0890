package session

import "time"

// Wire protocol between the daemon and its clients: newline-delimited JSON
// over a unix domain socket, one request per message, one response back on
// the same connection.

const (
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	// OpWipe atomically drops every stored key. Used on logout so no
	// process can observe a half-cleared session.
	OpWipe = "wipe"
)

type Request struct {
	Op    string `json:"op"`
	Key   string `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
	// TTLMillis matches the store's expiry resolution.
	TTLMillis int64 `json:"ttl_ms,omitempty"`
}

type Response struct {
	OK    bool   `json:"ok"`
	Value []byte `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handle dispatches one request against kv. The daemon and in-process test
// servers share this so the protocol has exactly one implementation.
func Handle(kv KV, req Request) Response {
	fail := func(err error) Response { return Response{Error: err.Error()} }
	switch req.Op {
	case OpGet:
		v, err := kv.Get(req.Key)
		if err != nil {
			return fail(err)
		}
		return Response{OK: true, Value: v}
	case OpPut:
		if err := kv.Put(req.Key, req.Value, time.Duration(req.TTLMillis)*time.Millisecond); err != nil {
			return fail(err)
		}
		return Response{OK: true}
	case OpDelete:
		if err := kv.Delete(req.Key); err != nil {
			return fail(err)
		}
		return Response{OK: true}
	case OpWipe:
		w, ok := kv.(Wiper)
		if !ok {
			return Response{Error: "session: store cannot wipe"}
		}
		if err := w.Wipe(); err != nil {
			return fail(err)
		}
		return Response{OK: true}
	default:
		return Response{Error: "session: unknown op " + req.Op}
	}
}
