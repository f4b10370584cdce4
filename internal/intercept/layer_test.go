package intercept

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/ashureev/tutorlens/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayer_ActivateInstallsAndDeactivateRestores(t *testing.T) {
	base := &fakeTransport{}
	slot := NewSlot(base)
	l := NewLayer(domain.Settings{}, nil, nil)

	require.NoError(t, l.Activate(slot))
	assert.True(t, l.IsActive())
	assert.Same(t, l, slot.ActiveLayer())

	assert.True(t, l.Deactivate())
	assert.False(t, l.IsActive())
	assert.Same(t, base, slot.Current())
	assert.False(t, l.Deactivate(), "second deactivate is a no-op")
}

func TestLayer_ActivateTwiceIsNoop(t *testing.T) {
	base := &fakeTransport{}
	slot := NewSlot(base)
	l := NewLayer(domain.Settings{}, nil, nil)

	require.NoError(t, l.Activate(slot))
	require.NoError(t, l.Activate(slot))

	// The captured original must still be the base, not the layer itself.
	assert.True(t, l.Deactivate())
	assert.Same(t, base, slot.Current())
}

func TestLayer_SecondActivationDeactivatesFirstOnce(t *testing.T) {
	base := &fakeTransport{}
	slot := NewSlot(base)
	first := NewLayer(domain.Settings{}, nil, nil)
	second := NewLayer(domain.Settings{}, nil, nil)

	require.NoError(t, first.Activate(slot))
	require.NoError(t, second.Activate(slot))

	assert.False(t, first.IsActive())
	assert.True(t, second.IsActive())
	assert.Same(t, second, slot.ActiveLayer())
	assert.False(t, first.Deactivate(), "first layer was already deactivated")

	// second captured the real original, so its restore is the base.
	assert.True(t, second.Deactivate())
	assert.Same(t, base, slot.Current())
}

func TestLayer_ActivateNilSlot(t *testing.T) {
	l := NewLayer(domain.Settings{}, nil, nil)
	assert.ErrorIs(t, l.Activate(nil), ErrNilSlot)
}

func TestLayer_PassThroughIsIdentity(t *testing.T) {
	base := &fakeTransport{}
	slot := NewSlot(base)
	l := NewLayer(domain.Settings{}, nil, nil)
	l.Use(NewTutoringInterceptor(&fakeGenerator{guidance: "g"}, TutoringConfig{TargetPath: testTarget}, l.Settings, nil, nil))
	require.NoError(t, l.Activate(slot))
	defer l.Deactivate()

	req, err := http.NewRequest(http.MethodPost, "http://tutor.test/api/other", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	resp, err := slot.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 1, base.calls())
	assert.Same(t, req, base.reqs[0], "unclaimed request reaches the original primitive untouched")
	assert.Equal(t, `{"message":"hi"}`, string(base.lastBody()))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLayer_UpdateSettings(t *testing.T) {
	l := NewLayer(domain.Settings{Credential: " sk-old "}, nil, nil)
	assert.Equal(t, "sk-old", l.Settings().Credential)

	blank := "   "
	on := true
	got := l.UpdateSettings(domain.SettingsPatch{Credential: &blank, DebugMode: &on})
	assert.False(t, got.HasCredential())
	assert.True(t, l.Settings().DebugMode)
}

func TestLayer_FetchURLConvention(t *testing.T) {
	base := &fakeTransport{}
	slot := NewSlot(base)
	l := NewLayer(domain.Settings{Credential: "sk-test"}, nil, nil)
	l.Use(NewTutoringInterceptor(&fakeGenerator{guidance: "Ask them to count."}, TutoringConfig{TargetPath: testTarget}, l.Settings, nil, nil))
	require.NoError(t, l.Activate(slot))
	defer l.Deactivate()

	resp, err := l.Fetch(context.Background(), "http://tutor.test"+testTarget, &FetchOptions{
		Method:      http.MethodPost,
		Header:      http.Header{"Cookie": {"session=1"}, "Content-Type": {"application/json"}},
		Body:        []byte(`{"message":"What is 2+2?"}`),
		Credentials: CredentialsOmit,
	})
	require.NoError(t, err)
	drain(t, resp)

	require.Equal(t, 1, base.calls())
	assert.Empty(t, base.reqs[0].Header.Get("Cookie"))
	assert.Contains(t, string(base.lastBody()), "Ask them to count.")
}

func TestNormalize_UnsupportedResource(t *testing.T) {
	_, err := Normalize(context.Background(), 42, nil)
	assert.ErrorIs(t, err, errUnsupportedResource)
}

func TestNormalize_DefaultsToGet(t *testing.T) {
	r, err := Normalize(context.Background(), "http://tutor.test/x", nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, r.Method)
	body, err := r.Body()
	require.NoError(t, err)
	assert.Empty(t, body)
}

type panicInterceptor struct{}

func (panicInterceptor) Name() string                  { return "panicky" }
func (panicInterceptor) ShouldIntercept(*Request) bool { return true }
func (panicInterceptor) Intercept(req *Request, _ http.RoundTripper) (*http.Response, error) {
	_, _ = req.Body()
	panic("boom")
}

func TestPipeline_PanicForwardsOriginal(t *testing.T) {
	base := &fakeTransport{}
	p := NewPipeline(nil)
	p.Register(panicInterceptor{})

	req, err := http.NewRequest(http.MethodPost, "http://tutor.test/x", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	resp, err := p.Handle(FromHTTP(req), base)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, `{"message":"hi"}`, string(base.lastBody()))
}

func TestPipeline_RegisterReplacesByName(t *testing.T) {
	p := NewPipeline(nil)
	p.Register(NewTutoringInterceptor(&fakeGenerator{}, TutoringConfig{TargetPath: "/a"}, nil, nil, nil))
	p.Register(panicInterceptor{})
	p.Register(NewTutoringInterceptor(&fakeGenerator{}, TutoringConfig{TargetPath: "/b"}, nil, nil, nil))

	assert.Equal(t, []string{TutoringName, "panicky"}, p.Names())
	assert.True(t, p.Unregister("panicky"))
	assert.False(t, p.Unregister("panicky"))
	assert.Equal(t, []string{TutoringName}, p.Names())
}
