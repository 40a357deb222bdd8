package ias

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"testing"
)

// pipeDial serves one canned response per connection and captures what the
// client wrote.
func pipeDial(t *testing.T, response []byte, requests *[][]byte) DialFunc {
	t.Helper()
	return func(host string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			buf := make([]byte, 4096)
			var req []byte
			for !bytes.Contains(req, []byte("\r\n\r\n")) {
				n, err := server.Read(buf)
				if err != nil {
					return
				}
				req = append(req, buf[:n]...)
			}
			*requests = append(*requests, req)
			server.Write(response)
		}()
		return client, nil
	}
}

func TestGetSigRLRequestShape(t *testing.T) {
	var requests [][]byte
	response := []byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	client := NewClient(Config{
		Host:            "attestation.example.com",
		SigRLPath:       "/sgx/dev/attestation/v4/sigrl/",
		SubscriptionKey: "testkey",
		Dial:            pipeDial(t, response, &requests),
	}, nil)

	sigrl, err := client.GetSigRL(0x00000b2d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigrl) != 0 {
		t.Fatalf("expected empty revocation list, got %d bytes", len(sigrl))
	}

	if len(requests) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(requests))
	}
	want := "GET /sgx/dev/attestation/v4/sigrl/00000b2d HTTP/1.1\r\n" +
		"HOST: attestation.example.com\r\n" +
		"Ocp-Apim-Subscription-Key: testkey\r\n" +
		"Connection: Close\r\n\r\n"
	if got := string(requests[0]); got != want {
		t.Fatalf("request mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestGetReportRequestShape(t *testing.T) {
	var requests [][]byte
	quote := []byte("quote bytes")
	body := `{"ok":true}`
	response := []byte(fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Length: %d\r\nX-IASReport-Signature: %s\r\nX-IASReport-Signing-Certificate: -----BEGIN%%20CERTIFICATE-----%%0AaGVsbG8=%%0A-----END-----\r\n\r\n%s",
		len(body), base64.StdEncoding.EncodeToString([]byte("sig")), body))

	client := NewClient(Config{
		Host:            "attestation.example.com",
		ReportPath:      "/sgx/dev/attestation/v4/report",
		SubscriptionKey: "testkey",
		Dial:            pipeDial(t, response, &requests),
	}, nil)

	resp, err := client.GetReport(quote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != body {
		t.Fatalf("body mismatch: got %q", resp.Body)
	}

	wantBody := fmt.Sprintf("{\"isvEnclaveQuote\":\"%s\"}\r\n", base64.StdEncoding.EncodeToString(quote))
	want := "POST /sgx/dev/attestation/v4/report HTTP/1.1\r\n" +
		"HOST: attestation.example.com\r\n" +
		"Ocp-Apim-Subscription-Key:testkey\r\n" +
		fmt.Sprintf("Content-Length:%d\r\n", len(wantBody)) +
		"Content-Type: application/json\r\n" +
		"Connection: close\r\n\r\n" +
		wantBody
	if got := string(requests[0]); got != want {
		t.Fatalf("request mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestGetSigRLDialFailure(t *testing.T) {
	client := NewClient(Config{
		SubscriptionKey: "testkey",
		Dial: func(host string) (net.Conn, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}, nil)
	if _, err := client.GetSigRL(1); err == nil {
		t.Fatal("expected dial failure to surface")
	} else if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("unexpected error: %v", err)
	}
}
