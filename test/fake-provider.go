package main

import (
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
)

// Minimal stand-in for the upstream TTS API, useful for exercising the
// gateway locally without burning provider balance.
func main() {
	http.HandleFunc("/v1/t2a_v2", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)

		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"base_resp": map[string]interface{}{
				"status_code": 0,
				"status_msg":  "success",
			},
			"data": map[string]interface{}{
				"audio": hex.EncodeToString([]byte("fake audio for: " + req.Text)),
			},
		})
	})

	log.Println("Fake TTS provider starting on :3001")
	if err := http.ListenAndServe(":3001", nil); err != nil {
		log.Fatal(err)
	}
}
