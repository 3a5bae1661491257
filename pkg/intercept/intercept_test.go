package intercept

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestFilterURLFragment(t *testing.T) {
	f := NewFilter(nil)

	if !f.Match("https://practice.example.com/problems/two-sum/submit/", nil) {
		t.Error("submit endpoint should match the allow-list")
	}
	if f.Match("https://practice.example.com/api/user/profile", nil) {
		t.Error("unrelated endpoint without a body should not match")
	}
}

func TestFilterStructuralCheck(t *testing.T) {
	f := NewFilter([]string{"/never-matches/"})

	body := []byte(`{"typed_code": "def f(): pass", "lang": "python3", "question_id": "1"}`)
	if !f.Match("https://practice.example.com/api/whatever", body) {
		t.Error("body with code and language fields should match")
	}

	wrapped := []byte(`{"data": {"rawCode": "class Solution {}", "language": "java"}}`)
	if !f.Match("https://practice.example.com/api/whatever", wrapped) {
		t.Error("data-wrapped code+language body should match")
	}

	noLang := []byte(`{"typed_code": "def f(): pass"}`)
	if f.Match("https://practice.example.com/api/whatever", noLang) {
		t.Error("body without a language field should not match")
	}
}

func TestObserverEmitsCandidate(t *testing.T) {
	var got *Candidate
	obs := NewObserver(NewFilter(nil), func(c *Candidate) { got = c })

	url := "https://practice.example.com/problems/two-sum/submit/"
	obs.OnRequestObserved(url, []byte(`{"typed_code": "def f(): pass", "lang": "python3"}`))
	obs.OnResponseObserved(url, []byte(`{"submission_id": 123}`))

	if got == nil {
		t.Fatal("expected a candidate")
	}
	if got.URL != url {
		t.Errorf("candidate url = %q", got.URL)
	}
	if !strings.Contains(string(got.RequestBody), "typed_code") {
		t.Errorf("request body not paired: %q", got.RequestBody)
	}
	if got.ID == "" {
		t.Error("candidate needs an id")
	}
}

func TestObserverSwallowsBadJSON(t *testing.T) {
	emitted := 0
	obs := NewObserver(NewFilter(nil), func(*Candidate) { emitted++ })

	obs.OnResponseObserved("https://practice.example.com/submit/", []byte("<html>not json</html>"))

	if emitted != 0 {
		t.Errorf("non-JSON bodies must be dropped, emitted %d", emitted)
	}
}

func TestObserverFiltersIrrelevantTraffic(t *testing.T) {
	emitted := 0
	obs := NewObserver(NewFilter(nil), func(*Candidate) { emitted++ })

	obs.OnResponseObserved("https://practice.example.com/api/tags", []byte(`{"tags": []}`))

	if emitted != 0 {
		t.Errorf("filtered traffic must not emit, emitted %d", emitted)
	}
}

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransportConcurrentObservation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status_msg": "Accepted"}`))
	}))
	defer upstream.Close()

	var mu sync.Mutex
	var emitted int
	obs := NewObserver(nil, func(*Candidate) {
		mu.Lock()
		emitted++
		mu.Unlock()
	})

	// RoundTrippers must be safe for concurrent use; hammer the observer
	// from many goroutines through a shared client.
	client := &http.Client{Transport: &Transport{Port: obs}}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				url := fmt.Sprintf("%s/submit/%d-%d", upstream.URL, n, j)
				resp, err := client.Post(url, "application/json",
					bytes.NewReader([]byte(`{"typed_code": "def f(): pass", "lang": "python3"}`)))
				if err != nil {
					t.Errorf("request failed: %v", err)
					return
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if emitted != 16*8 {
		t.Errorf("emitted %d candidates, want %d", emitted, 16*8)
	}
}

func TestTransportTransparency(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "typed_code") {
			t.Errorf("upstream saw mutated request body: %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status_msg": "Accepted"}`))
	}))
	defer upstream.Close()

	var sawReq, sawResp []byte
	port := portFuncs{
		onReq:  func(url string, body []byte) { sawReq = body },
		onResp: func(url string, body []byte) { sawResp = body },
	}

	client := &http.Client{Transport: &Transport{Port: port}}
	resp, err := client.Post(upstream.URL+"/submit/", "application/json",
		bytes.NewReader([]byte(`{"typed_code": "def f(): pass", "lang": "python3"}`)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// The page-facing response is unchanged.
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status_msg": "Accepted"}` {
		t.Errorf("response body altered: %q", body)
	}

	// The port received copies of both bodies.
	if !strings.Contains(string(sawReq), "typed_code") {
		t.Errorf("port missed request body: %q", sawReq)
	}
	if !strings.Contains(string(sawResp), "Accepted") {
		t.Errorf("port missed response body: %q", sawResp)
	}
}

type portFuncs struct {
	onReq  func(string, []byte)
	onResp func(string, []byte)
}

func (p portFuncs) OnRequestObserved(url string, body []byte)  { p.onReq(url, body) }
func (p portFuncs) OnResponseObserved(url string, body []byte) { p.onResp(url, body) }
