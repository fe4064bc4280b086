package relayserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"sparsechat/internal/domain"
)

var errMessageTooLarge = errors.New("relayserver: mailbox message too large")

// Mailbox is a bounded in-memory drop box for ciphertext. Every entry can be
// collected once.
type Mailbox struct {
	maxEntries int
	maxBytes   int
	gauge      prometheus.Gauge

	mu      sync.Mutex
	entries map[domain.MailboxID][]byte
}

// NewMailbox returns an empty mailbox. gauge may be nil.
func NewMailbox(maxEntries, maxBytes int, gauge prometheus.Gauge) *Mailbox {
	return &Mailbox{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		gauge:      gauge,
		entries:    make(map[domain.MailboxID][]byte),
	}
}

// Put stores msg under a fresh identifier.
func (m *Mailbox) Put(msg []byte) (domain.MailboxID, error) {
	if len(msg) > m.maxBytes {
		return "", fmt.Errorf("%w: %d > %d bytes", errMessageTooLarge, len(msg), m.maxBytes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= m.maxEntries {
		return "", fmt.Errorf("%w: mailbox holds %d entries", domain.ErrQueueFull, len(m.entries))
	}
	id := domain.MailboxID(uuid.NewString())
	m.entries[id] = append([]byte(nil), msg...)
	m.setGaugeLocked()
	return id, nil
}

// Take removes and returns the entry for id.
func (m *Mailbox) Take(id domain.MailboxID) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
		m.setGaugeLocked()
	}
	return msg, ok
}

// Len counts stored entries.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Mailbox) setGaugeLocked() {
	if m.gauge != nil {
		m.gauge.Set(float64(len(m.entries)))
	}
}

type mailboxMessage struct {
	Message []byte `json:"message"`
}

type mailboxReceipt struct {
	ID domain.MailboxID `json:"id"`
}

type mailboxHandler struct {
	box *Mailbox
	log *logrus.Entry
}

func (h *mailboxHandler) put(w http.ResponseWriter, r *http.Request) {
	limit := int64(base64.StdEncoding.EncodedLen(h.box.maxBytes)) + 1024
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	var in mailboxMessage
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if len(in.Message) == 0 {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	id, err := h.box.Put(in.Message)
	switch {
	case errors.Is(err, errMessageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "message too large")
		return
	case errors.Is(err, domain.ErrQueueFull):
		h.log.WithError(err).Warn("mailbox full")
		writeError(w, http.StatusInsufficientStorage, "mailbox full")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.log.WithFields(logrus.Fields{"mailbox_id": id, "bytes": len(in.Message)}).Debug("mailbox deposit")
	writeJSON(w, http.StatusCreated, mailboxReceipt{ID: id})
}

func (h *mailboxHandler) get(w http.ResponseWriter, r *http.Request) {
	id := domain.MailboxID(r.PathValue("id"))
	msg, ok := h.box.Take(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, mailboxMessage{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{msg})
}
