package keepalive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		env  map[string]string
		want Platform
		host string
	}{
		{map[string]string{}, None, ""},
		{map[string]string{"PROJECT_DOMAIN": "relay"}, Glitch, "relay.glitch.me"},
		{map[string]string{"RENDER": "true", "RENDER_EXTERNAL_HOSTNAME": "r.onrender.com"}, Render, "r.onrender.com"},
		{map[string]string{"RAILWAY_STATIC_URL": "https://x.up.railway.app/"}, Railway, "x.up.railway.app"},
		{map[string]string{"REPL_ID": "1", "REPL_SLUG": "relay", "REPL_OWNER": "me"}, Replit, "relay.me.repl.co"},
		{map[string]string{"HEROKU_APP_NAME": "relay"}, Heroku, "relay.herokuapp.com"},
	}
	for _, c := range cases {
		getenv := func(k string) string { return c.env[k] }
		p := Detect(getenv)
		assert.Equal(t, c.want, p, "%v", c.env)
		assert.Equal(t, c.host, PublicHost(p, getenv), "%v", c.env)
	}
}

func TestDetectProcessEnv(t *testing.T) {
	t.Setenv("HEROKU_APP_ID", "abc")
	assert.Equal(t, Heroku, Detect(os.Getenv))
}

type counter int

func (c counter) ActiveConnectionCount() int { return int(c) }

func TestPingerRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			hits.Add(1)
		}
	}))
	defer srv.Close()

	p := NewPinger(strings.TrimPrefix(srv.URL, "http://"), 10*time.Millisecond, counter(2))
	require.NotNil(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return hits.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestNilPinger(t *testing.T) {
	p := NewPinger("", time.Minute, nil)
	assert.Nil(t, p)
	p.Run(context.Background())
}
