package proxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elskow/berth/internal/remote"
	"github.com/elskow/berth/internal/runtime"
)

func TestRender_ReverseProxy(t *testing.T) {
	c := NewConfigurator(zap.NewNop())

	text, err := c.Render(runtime.Profile{Kind: runtime.KindNode}, "example.com", 3000, "/var/www/app")
	require.NoError(t, err)

	assert.Contains(t, text, "proxy_pass http://127.0.0.1:3000")
	assert.Contains(t, text, "server_name example.com")
	assert.Contains(t, text, "proxy_set_header Upgrade $http_upgrade")
	assert.Contains(t, text, "proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for")
	assert.NotContains(t, text, "root /var/www/app")
}

func TestRender_StaticServing(t *testing.T) {
	c := NewConfigurator(zap.NewNop())

	text, err := c.Render(runtime.Profile{Kind: runtime.KindStatic}, "example.com", 3000, "/var/www/site")
	require.NoError(t, err)

	assert.Contains(t, text, "root /var/www/site")
	assert.Contains(t, text, "index index.html")
	assert.Contains(t, text, "try_files $uri $uri/ /index.html =404")
	assert.NotContains(t, text, "proxy_pass")
}

func TestRender_NonStaticKindsAllProxy(t *testing.T) {
	c := NewConfigurator(zap.NewNop())
	for _, kind := range []runtime.Kind{runtime.KindNode, runtime.KindPython, runtime.KindRuby, runtime.KindPHP, runtime.KindOther} {
		text, err := c.Render(runtime.Profile{Kind: kind}, "h", 8080, "/srv/x")
		require.NoError(t, err)
		assert.Contains(t, text, "proxy_pass http://127.0.0.1:8080", kind.String())
	}
}

func TestInstall_WritesFixedSiteName(t *testing.T) {
	mock := remote.NewMockExecutor()
	c := NewConfigurator(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Install(ctx, mock, "app", "server {}"))

	assert.True(t, mock.CalledWith("sudo mv /tmp/app.nginx /etc/nginx/sites-available/app"))
	assert.True(t, mock.CalledWith("ln -sf /etc/nginx/sites-available/app /etc/nginx/sites-enabled/app"))
	assert.True(t, mock.CalledWith("rm -f /etc/nginx/sites-enabled/default"))
	assert.True(t, mock.CalledWith("nginx -t"))
}

func TestInstall_TwiceReplacesSameFile(t *testing.T) {
	mock := remote.NewMockExecutor()
	c := NewConfigurator(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Install(ctx, mock, "app", "server { # v1 }"))
	require.NoError(t, c.Install(ctx, mock, "app", "server { # v2 }"))

	// both installs target the identical site path, so nothing accumulates
	assert.Equal(t, 2, mock.CountCalls("sites-available/app"))

	var uploads []string
	for _, call := range mock.Calls() {
		if call.Stdin != "" {
			uploads = append(uploads, call.Stdin)
		}
	}
	require.Len(t, uploads, 2)
	assert.Contains(t, uploads[1], "v2")
}

func TestInstall_ValidationFailureBlocksReload(t *testing.T) {
	mock := remote.NewMockExecutor()
	mock.Fail("nginx -t", `nginx: [emerg] unexpected "}" in /etc/nginx/sites-enabled/app:3`)
	c := NewConfigurator(zap.NewNop())

	err := c.Install(context.Background(), mock, "app", "server { bad }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.False(t, mock.CalledWith("reload nginx"))
}

func TestRemove_IsIdempotent(t *testing.T) {
	mock := remote.NewMockExecutor()
	c := NewConfigurator(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Remove(ctx, mock, "app"))
	require.NoError(t, c.Remove(ctx, mock, "app"))

	assert.Equal(t, 2, mock.CountCalls("rm -f /etc/nginx/sites-enabled/app /etc/nginx/sites-available/app"))
}
