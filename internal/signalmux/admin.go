package signalmux

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var publishTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/publish.html.tmpl"))

// AdminOptions configures the debug pages.
type AdminOptions struct {
	Topics    []string // offered in the publish form
	TailTopic string   // streamed on the publish page
}

// AttachAdminRoutes attaches the publish form, its API and an SSE tail to the
// /debug/ handler on mux. These routes are accessible only over
// localhost/via Tailscale.
func AttachAdminRoutes(mux *http.ServeMux, bus Mux, opts AdminOptions) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("publish", "publish an operator signal", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		data := struct {
			Topics []string
			Tail   string
		}{opts.Topics, opts.TailTopic}
		if err := publishTemplate.Execute(buf, data); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("publish-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		topic := strings.TrimSpace(r.FormValue("topic"))
		if topic == "" {
			http.Error(w, "Missing topic", http.StatusBadRequest)
			return
		}
		payload := strings.TrimSpace(r.FormValue("payload"))
		if payload != "" && !json.Valid([]byte(payload)) {
			http.Error(w, "Payload is not valid JSON", http.StatusBadRequest)
			return
		}
		if err := bus.Publish(topic, json.RawMessage(payload)); err != nil {
			http.Error(w, "Failed to publish", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Published %q", topic))
	})

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ServeTail(w, r, bus, r.URL.Query().Get("topic"))
	})
}

// ServeTail streams messages on topic as Server-Sent Events until the client
// goes away or the bus closes.
func ServeTail(w http.ResponseWriter, r *http.Request, bus Mux, topic string) {
	if topic == "" {
		http.Error(w, "Missing topic", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := bus.Subscribe(topic)
	defer bus.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case msg, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", FormatLine(msg.Topic, msg.Payload)); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
