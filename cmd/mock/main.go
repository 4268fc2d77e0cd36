package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"time"
)

// mock 目录服务，行为由号码后缀决定，便于本地联调：
//
//	后缀 429 -> 限流（带 Retry-After 头）
//	后缀 403 -> 账号封禁
//	后缀 500 -> 上游错误
//	其余     -> 末位偶数视为已注册
func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	mux.HandleFunc("/mock/v1/lookup", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Identifier string `json:"identifier"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := strings.TrimSpace(body.Identifier)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case id == "":
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "identifier required"})

		case strings.HasSuffix(id, "429"):
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":        "rate limited",
				"retryAfterMs": 2000,
			})

		case strings.HasSuffix(id, "403"):
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "account suspended"})

		case strings.HasSuffix(id, "500"):
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "internal error"})

		default:
			registered := registeredByParity(id)
			resp := map[string]any{"registered": registered}
			if registered {
				resp["profile"] = map[string]any{
					"displayName": "Mock 用户 " + tail(id, 4),
					"about":       "Hey there!",
					"hasAvatar":   true,
					"lastSeenMs":  time.Now().Add(-37 * time.Minute).UnixMilli(),
				}
			}
			_ = json.NewEncoder(w).Encode(resp)
		}
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mock listening on %s", *addr)
	log.Fatal(srv.ListenAndServe())
}

func registeredByParity(id string) bool {
	last := id[len(id)-1]
	return last >= '0' && last <= '9' && (last-'0')%2 == 0
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
