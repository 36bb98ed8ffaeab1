// Package main runs a demo WebSocket client for plan events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so the plan event is not missed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m map[string]any
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			out, _ := json.Marshal(m)
			log.Printf("WS <- %s", out)
		}
	}()

	// Submit a small plan to trigger a plan.completed event
	body := []byte(`{
		"tasks": [
			{"id": "T1", "skill": "driver", "location": [13.047, 77.615], "pincode": 560033, "duration": 30},
			{"id": "T2", "skill": "driver", "location": [13.04, 77.551], "pincode": 560022, "duration": 30}
		],
		"agents": [
			{"id": "A1", "skills": ["driver"], "location": [12.939, 77.741], "availability": 120,
			 "allowedLocations": [560033, 560022]}
		]
	}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var plan struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		log.Fatal(err)
	}
	log.Printf("Plan %s: %s", plan.ID, plan.Status)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
