package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/nbd-wtf/go-nostr"

	"github.com/obscurnet/nativebridge/config"
	"github.com/obscurnet/nativebridge/internal/bridge"
)

// request is one line of stdin: a single UI-issued command.
type request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

// response is one line of stdout answering a request by ID.
type response struct {
	ID     string        `json:"id"`
	OK     bool          `json:"ok"`
	Result any           `json:"result,omitempty"`
	Error  *errorPayload `json:"error,omitempty"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// outbound wraps either a response or an asynchronous event so the
// writer goroutine can serialize both onto the same stdout stream.
type outbound struct {
	Type     string        `json:"type"`
	Response *response     `json:"response,omitempty"`
	Event    *bridge.Event `json:"event,omitempty"`
}

const maxLineSize = 64 * 1024 * 1024

// runIPC reads one JSON request per line from stdin and writes one JSON
// envelope per line to stdout, dispatching concurrently so a slow command
// (an upload, a backpressured publish) never blocks others.
func runIPC(log *slog.Logger, surface *bridge.Surface, dataDir string) {
	out := make(chan outbound, 256)
	go writeLoop(out)
	go relayEvents(surface, out)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			log.Warn("malformed ipc request", "error", err)
			continue
		}
		reqCopy := req
		go func() {
			res := dispatch(context.Background(), surface, dataDir, reqCopy)
			out <- outbound{Type: "response", Response: &res}
		}()
	}
	if err := scanner.Err(); err != nil {
		log.Error("ipc read loop terminated", "error", err)
	}
}

func relayEvents(surface *bridge.Surface, out chan<- outbound) {
	for ev := range surface.Events() {
		evCopy := ev
		out <- outbound{Type: "event", Event: &evCopy}
	}
}

func writeLoop(out <-chan outbound) {
	w := bufio.NewWriter(os.Stdout)
	for env := range out {
		data, err := json.Marshal(env)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
		w.Flush()
	}
}

func ok(id string, result any) response {
	return response{ID: id, OK: true, Result: result}
}

func fail(id string, err *bridge.Error) response {
	return response{ID: id, OK: false, Error: &errorPayload{Kind: string(err.Kind), Message: err.Message}}
}

func failPlain(id, message string) response {
	return response{ID: id, OK: false, Error: &errorPayload{Kind: "InvalidInput", Message: message}}
}

// dispatch maps a command name onto the corresponding Surface method.
func dispatch(ctx context.Context, s *bridge.Surface, dataDir string, req request) response {
	switch req.Command {
	case "connect_relay":
		var p struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		if err := s.ConnectRelay(ctx, p.URL); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "disconnect_relay":
		var p struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		if err := s.DisconnectRelay(p.URL); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "probe_relay":
		var p struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		report, err := s.ProbeRelay(ctx, p.URL)
		if err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, report)

	case "publish_event":
		var p struct {
			URL   string          `json:"url"`
			Event json.RawMessage `json:"event"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		if err := s.PublishEvent(p.URL, p.Event); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "subscribe_relay":
		var p struct {
			URL    string          `json:"url"`
			SubID  string          `json:"subId"`
			Filter json.RawMessage `json:"filter"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		if err := s.SubscribeRelay(p.URL, p.SubID, p.Filter); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "unsubscribe_relay":
		var p struct {
			URL   string `json:"url"`
			SubID string `json:"subId"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		if err := s.UnsubscribeRelay(p.URL, p.SubID); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "send_relay_message":
		var p struct {
			URL  string `json:"url"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		if err := s.SendRelayMessage(p.URL, p.Text); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "start_tor":
		if err := s.StartTor(); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "stop_tor":
		if err := s.StopTor(); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "get_tor_status":
		return ok(req.ID, s.GetTorStatus())

	case "save_tor_settings":
		var p struct {
			Enabled  bool   `json:"enabled"`
			ProxyURL string `json:"proxyUrl"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		if err := s.SaveTorSettings(config.TorSettingsPath(dataDir), p.Enabled, p.ProxyURL); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "init_native_session":
		pub, err := s.InitNativeSession()
		if err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, pub)

	case "clear_native_session":
		s.ClearNativeSession()
		return ok(req.ID, nil)

	case "get_native_npub":
		npub, err := s.GetNativeNpub()
		if err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, npub)

	case "import_native_nsec":
		var p struct {
			Secret string `json:"secret"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		pub, err := s.ImportNativeNsec(p.Secret)
		if err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, pub)

	case "generate_native_nsec":
		npub, err := s.GenerateNativeNsec()
		if err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, npub)

	case "sign_event_native":
		var p struct {
			Kind      int        `json:"kind"`
			Content   string     `json:"content"`
			Tags      [][]string `json:"tags"`
			CreatedAt int64      `json:"createdAt"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		ev, err := s.SignEventNative(p.Kind, p.Content, tagsFrom(p.Tags), p.CreatedAt)
		if err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, ev)

	case "logout_native":
		if err := s.LogoutNative(); err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, nil)

	case "encrypt_nip04":
		var p struct {
			PeerPubkey string `json:"peerPubkey"`
			Plaintext  string `json:"plaintext"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		ciphertext, err := s.EncryptNip04(p.PeerPubkey, p.Plaintext)
		if err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, ciphertext)

	case "decrypt_nip04":
		var p struct {
			PeerPubkey string `json:"peerPubkey"`
			Ciphertext string `json:"ciphertext"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		plaintext, err := s.DecryptNip04(p.PeerPubkey, p.Ciphertext)
		if err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, plaintext)

	case "nip96_upload":
		var p struct {
			APIURL      string `json:"apiUrl"`
			FileBase64  string `json:"fileBase64"`
			FileName    string `json:"fileName"`
			ContentType string `json:"contentType"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return failPlain(req.ID, err.Error())
		}
		fileBytes, decErr := base64.StdEncoding.DecodeString(p.FileBase64)
		if decErr != nil {
			return failPlain(req.ID, decErr.Error())
		}
		res, err := s.Nip96Upload(p.APIURL, fileBytes, p.FileName, p.ContentType)
		if err != nil {
			return fail(req.ID, err)
		}
		return ok(req.ID, res)

	default:
		return failPlain(req.ID, "unknown command: "+req.Command)
	}
}

func tagsFrom(raw [][]string) nostr.Tags {
	tags := make(nostr.Tags, len(raw))
	for i, t := range raw {
		tags[i] = nostr.Tag(t)
	}
	return tags
}
