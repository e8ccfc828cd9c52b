package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/distribd/distribd/pkg/log"
)

// Handler is implemented by pkg/consensus.Node. Keeping it here, rather
// than importing consensus, lets consensus import transport without a
// cycle.
type Handler interface {
	RequestVote(ctx context.Context, req RequestVoteRequest) RequestVoteResponse
	AppendEntries(ctx context.Context, req AppendEntriesRequest) AppendEntriesResponse
	// AddEntry returns the HTTP status to write alongside the response
	// body: 200 on commit, 400 with Reason=ReasonNotALeader on a non-leader,
	// 500 when the entries could not be appended or did not commit in time.
	AddEntry(ctx context.Context, req AddEntryRequest) (AddEntryResponse, int)
}

// NewServer builds the peer-transport HTTP handler: the three RPC
// endpoints consensus peers call on this node.
func NewServer(h Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/request-vote", func(w http.ResponseWriter, r *http.Request) {
		var req RequestVoteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, h.RequestVote(r.Context(), req))
	})

	mux.HandleFunc("/append-entries", func(w http.ResponseWriter, r *http.Request) {
		var req AppendEntriesRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, h.AppendEntries(r.Context(), req))
	})

	mux.HandleFunc("/add-entry", func(w http.ResponseWriter, r *http.Request) {
		var req AddEntryRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, status := h.AddEntry(r.Context(), req)
		writeJSON(w, status, resp)
	})

	return mux
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Logger.Debug().Err(err).Str("path", r.URL.Path).Msg("decode peer transport request")
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.Error().Err(err).Msg("encode peer transport response")
	}
}
