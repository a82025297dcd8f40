// Mock ledger node for local development and e2e runs. It speaks the same
// four-endpoint protocol the engine's ledger client uses and keeps all chain
// state in memory: anchors keyed by content hash, an issuer role set, and a
// monotonically increasing block counter. Submitted transactions are final
// after a configurable simulated delay.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	defaultPort      = "8545"
	defaultLatencyMs = "50"
)

var latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)

type anchor struct {
	ContentHash   string    `json:"content_hash"`
	SubjectWallet string    `json:"subject_wallet"`
	SubjectKey    string    `json:"subject_key"`
	SubjectName   string    `json:"subject_name"`
	IssuerWallet  string    `json:"issuer_wallet"`
	Title         string    `json:"title"`
	TxRef         string    `json:"tx_ref"`
	BlockRef      string    `json:"block_ref"`
	Block         uint64    `json:"block"`
	Revoked       bool      `json:"revoked"`
	AnchoredAt    time.Time `json:"anchored_at"`
}

type node struct {
	mu      sync.Mutex
	anchors map[string]*anchor
	roles   map[string]bool
	pending map[string]uint64 // tx_ref -> block number
	height  uint64
}

func newNode() *node {
	return &node{
		anchors: make(map[string]*anchor),
		roles:   make(map[string]bool),
		pending: make(map[string]uint64),
	}
}

func main() {
	port := getEnv("PORT", defaultPort)
	n := newNode()

	// Pre-authorized issuer wallets for local runs.
	for _, wallet := range []string{
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	} {
		n.roles[wallet] = true
	}

	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/submit", n.handleSubmit)
	http.HandleFunc("/finality", n.handleFinality)
	http.HandleFunc("/query", n.handleQuery)
	http.HandleFunc("/role", n.handleRole)

	log.Printf("mock ledger node listening on port %s (finality latency %dms)", port, latencyMs)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ledger-node",
	})
}

type submitRequest struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args"`
}

func (n *node) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.height++
	txRef := "0x" + shortHash(fmt.Sprintf("%s:%d", req.Op, n.height))

	switch req.Op {
	case "issueCertificate":
		hash := str(req.Args, "content_hash")
		if hash == "" {
			sendError(w, "content_hash is required", http.StatusBadRequest)
			return
		}
		if _, exists := n.anchors[hash]; exists {
			sendError(w, "anchor already exists", http.StatusUnprocessableEntity)
			return
		}
		if !n.roles[str(req.Args, "issuer_wallet")] {
			sendError(w, "issuer wallet lacks the issuer role", http.StatusUnprocessableEntity)
			return
		}
		n.anchors[hash] = &anchor{
			ContentHash:   hash,
			SubjectWallet: str(req.Args, "subject_wallet"),
			SubjectKey:    str(req.Args, "subject_key"),
			SubjectName:   str(req.Args, "subject_name"),
			IssuerWallet:  str(req.Args, "issuer_wallet"),
			Title:         str(req.Args, "title"),
			TxRef:         txRef,
			BlockRef:      blockRef(n.height),
			Block:         n.height,
			AnchoredAt:    time.Now().UTC(),
		}

	case "revokeCertificate":
		a, exists := n.anchors[str(req.Args, "content_hash")]
		if !exists {
			sendError(w, "no such anchor", http.StatusUnprocessableEntity)
			return
		}
		if a.Revoked {
			sendError(w, "anchor already revoked", http.StatusUnprocessableEntity)
			return
		}
		a.Revoked = true

	case "grantIssuerRole":
		n.roles[str(req.Args, "wallet")] = true

	case "revokeIssuerRole":
		n.roles[str(req.Args, "wallet")] = false

	default:
		sendError(w, "unknown operation: "+req.Op, http.StatusBadRequest)
		return
	}

	n.pending[txRef] = n.height
	log.Printf("submitted %s as %s in block %d", req.Op, txRef, n.height)
	writeJSON(w, http.StatusOK, map[string]string{"tx_ref": txRef})
}

func (n *node) handleFinality(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxRef string `json:"tx_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Simulated confirmation delay.
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)

	n.mu.Lock()
	block, exists := n.pending[req.TxRef]
	n.mu.Unlock()
	if !exists {
		sendError(w, "unknown transaction", http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"block_ref": blockRef(block)})
}

func (n *node) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Op {
	case "getCertificate":
		a, exists := n.anchors[str(req.Args, "content_hash")]
		if !exists {
			writeResult(w, map[string]any{"exists": false})
			return
		}
		writeResult(w, map[string]any{
			"exists":       true,
			"revoked":      a.Revoked,
			"subject_name": a.SubjectName,
			"issuer_ref":   a.IssuerWallet,
			"tx_ref":       a.TxRef,
			"block_ref":    a.BlockRef,
			"anchored_at":  a.AnchoredAt,
		})

	case "listAnchors":
		from := num(req.Args, "from_block")
		limit := int(num(req.Args, "limit"))
		if limit <= 0 {
			limit = 100
		}
		var out []*anchor
		next := from
		for _, a := range n.anchors {
			if a.Block < from {
				continue
			}
			out = append(out, a)
			if a.Block+1 > next {
				next = a.Block + 1
			}
			if len(out) >= limit {
				break
			}
		}
		writeResult(w, map[string]any{"anchors": out, "next_block": next})

	default:
		sendError(w, "unknown query: "+req.Op, http.StatusBadRequest)
	}
}

func (n *node) handleRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet string `json:"wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	hasRole := n.roles[req.Wallet]
	n.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]bool{"has_role": hasRole})
}

func blockRef(height uint64) string {
	return "0x" + shortHash(fmt.Sprintf("block:%d", height))
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func str(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func num(args map[string]any, key string) uint64 {
	v, _ := args[key].(float64)
	return uint64(v)
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
	log.Printf("error response: %d - %s", code, message)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		intValue, _ = strconv.Atoi(defaultValue)
	}
	return intValue
}
