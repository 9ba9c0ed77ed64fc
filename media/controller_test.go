package media_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/virtuclass/classkit/faults"
	"github.com/virtuclass/classkit/log"
	"github.com/virtuclass/classkit/media"
	"github.com/virtuclass/classkit/quality"
	"github.com/virtuclass/classkit/retry"
)

var errNetworkDown = errors.New("network down")

func validParams() media.JoinParams {
	return media.JoinParams{
		AppID:       "app-1",
		ChannelName: "room-1",
		Token:       "token-1",
		UID:         "uid-1",
	}
}

// fakeProvider is an in-memory media conferencing provider.
type fakeProvider struct {
	mu           sync.Mutex
	joinErrs     []error
	publishErrs  []error
	joins        int
	publishes    int
	leaves       int
	remotes      []string
	subscribed   []string
	muteCalls    []bool
	videoCalls   []bool
	profiles     []quality.Level
	quality      quality.Level
	onDisconnect func(error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{quality: quality.LevelGood}
}

func (f *fakeProvider) Join(_ context.Context, _ media.JoinParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.joins++

	if len(f.joinErrs) > 0 {
		err := f.joinErrs[0]
		f.joinErrs = f.joinErrs[1:]

		return err
	}

	return nil
}

func (f *fakeProvider) Leave() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++

	return nil
}

func (f *fakeProvider) PublishLocalTracks() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.publishes++

	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]

		return err
	}

	return nil
}

func (f *fakeProvider) Subscribe(remoteUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, remoteUID)

	return nil
}

func (f *fakeProvider) RemoteParticipants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.remotes
}

func (f *fakeProvider) SetAudioMuted(muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muteCalls = append(f.muteCalls, muted)

	return nil
}

func (f *fakeProvider) SetVideoEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls = append(f.videoCalls, enabled)

	return nil
}

func (f *fakeProvider) SetEncoderProfile(level quality.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles = append(f.profiles, level)

	return nil
}

func (f *fakeProvider) TransportQuality() quality.Level {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.quality
}

func (f *fakeProvider) OnDisconnect(handler func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = handler
}

func (f *fakeProvider) setQuality(level quality.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quality = level
}

func (f *fakeProvider) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.joins
}

func (f *fakeProvider) lastProfiles() []quality.Level {
	f.mu.Lock()
	defer f.mu.Unlock()

	profiles := make([]quality.Level, len(f.profiles))
	copy(profiles, f.profiles)

	return profiles
}

func (f *fakeProvider) dropTransport(err error) {
	f.mu.Lock()
	handler := f.onDisconnect
	f.mu.Unlock()

	if handler != nil {
		handler(err)
	}
}

func newTestController(provider media.Provider) *media.Controller {
	controller := media.NewController(provider, log.NewMockLog())
	controller.SetPolicy(retry.Policy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     8 * time.Millisecond,
		Multiplier:   2,
	})
	controller.SetSampleInterval(2 * time.Millisecond)

	return controller
}

func eventually(t *testing.T, condition func() bool, msg string) {
	t.Helper()
	require.Eventually(t, condition, 2*time.Second, time.Millisecond, msg)
}

func TestStartSessionRequiresIdentifiers(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	controller := newTestController(provider)

	params := validParams()
	params.AppID = ""

	err := controller.StartSession(context.Background(), params)
	require.ErrorIs(t, err, faults.ErrConfiguration)
	assert.Zero(t, provider.joinCount(), "a configuration error must fail before the provider is touched")
}

func TestStartSessionIsIdempotent(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	controller := newTestController(provider)

	require.NoError(t, controller.StartSession(context.Background(), validParams()))
	require.NoError(t, controller.StartSession(context.Background(), validParams()))

	assert.Equal(t, 1, provider.joinCount())

	require.NoError(t, controller.StopSession())
}

func TestStartSessionNormalizesAlreadyJoined(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.joinErrs = []error{media.ErrAlreadyJoined}
	controller := newTestController(provider)

	require.NoError(t, controller.StartSession(context.Background(), validParams()))

	require.NoError(t, controller.StopSession())
}

func TestStartSessionClassifiesPermissionErrors(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.publishErrs = []error{media.ErrDeviceUnavailable}
	controller := newTestController(provider)

	err := controller.StartSession(context.Background(), validParams())
	require.ErrorIs(t, err, faults.ErrPermission)
	assert.False(t, faults.Retryable(err))
}

func TestStartSessionClassifiesTransportErrors(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.joinErrs = []error{errNetworkDown}
	controller := newTestController(provider)

	err := controller.StartSession(context.Background(), validParams())
	require.ErrorIs(t, err, faults.ErrTransport)
	assert.True(t, faults.Retryable(err))
}

func TestStartSessionSubscribesExistingRemotes(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.remotes = []string{"uid-2", "uid-3"}
	controller := newTestController(provider)

	require.NoError(t, controller.StartSession(context.Background(), validParams()))
	assert.Equal(t, []string{"uid-2", "uid-3"}, provider.subscribed)

	require.NoError(t, controller.StopSession())
}

func TestQualityChangeAdaptsEncoderAndWarns(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	controller := newTestController(provider)

	var (
		mu     sync.Mutex
		warns  int
		clears int
	)

	controller.SubscribeQuality(func(_ quality.Level, transition quality.Transition) {
		mu.Lock()
		defer mu.Unlock()

		if transition.Warn {
			warns++
		}

		if transition.Cleared {
			clears++
		}
	})

	require.NoError(t, controller.StartSession(context.Background(), validParams()))

	provider.setQuality(quality.LevelPoor)
	eventually(t, func() bool { return controller.Quality() == quality.LevelPoor }, "controller must observe the degraded sample")

	mu.Lock()
	assert.Equal(t, 1, warns)
	mu.Unlock()

	// Repeated degraded samples must not re-warn.
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, warns)
	mu.Unlock()

	provider.setQuality(quality.LevelGood)
	eventually(t, func() bool { return controller.Quality() == quality.LevelGood }, "controller must observe the recovery")

	mu.Lock()
	assert.Equal(t, 1, clears)
	mu.Unlock()

	profiles := provider.lastProfiles()
	require.NotEmpty(t, profiles)
	assert.Equal(t, quality.LevelPoor, profiles[0], "encoder must adapt to the degraded tier")

	require.NoError(t, controller.StopSession())
}

func TestToggleAudioIsIdempotent(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	controller := newTestController(provider)
	require.NoError(t, controller.StartSession(context.Background(), validParams()))

	require.NoError(t, controller.ToggleAudio(true))
	require.NoError(t, controller.ToggleAudio(true))

	assert.Equal(t, []bool{true}, provider.muteCalls)

	require.NoError(t, controller.StopSession())
}

func TestToggleVideoIsIdempotent(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	controller := newTestController(provider)
	require.NoError(t, controller.StartSession(context.Background(), validParams()))

	require.NoError(t, controller.ToggleVideo(false))
	require.NoError(t, controller.ToggleVideo(false))

	assert.Equal(t, []bool{false}, provider.videoCalls)

	require.NoError(t, controller.StopSession())
}

func TestTransportDisconnectRecoversViaBackoff(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	controller := newTestController(provider)
	require.NoError(t, controller.StartSession(context.Background(), validParams()))

	var (
		mu       sync.Mutex
		statuses []retry.Status
	)

	controller.SubscribeStatus(func(status retry.Status) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, status)
	})

	// Two rejoin failures, then success.
	provider.mu.Lock()
	provider.joinErrs = []error{errNetworkDown, errNetworkDown}
	provider.mu.Unlock()

	provider.dropTransport(errNetworkDown)

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(statuses) == 4 && !statuses[3].Reconnecting
	}, "expected three attempt statuses plus one terminal")

	mu.Lock()
	assert.Equal(t, 1, statuses[0].Attempt)
	assert.Equal(t, 2, statuses[1].Attempt)
	assert.Equal(t, 3, statuses[2].Attempt)
	assert.NoError(t, statuses[3].LastErr)
	mu.Unlock()

	assert.False(t, controller.ConnectionLost())

	require.NoError(t, controller.StopSession())
}

func TestExhaustionSurfacesConnectionLostAndManualReconnect(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	controller := newTestController(provider)
	require.NoError(t, controller.StartSession(context.Background(), validParams()))

	provider.mu.Lock()
	provider.joinErrs = []error{errNetworkDown, errNetworkDown, errNetworkDown, errNetworkDown, errNetworkDown}
	provider.mu.Unlock()

	provider.dropTransport(errNetworkDown)

	eventually(t, controller.ConnectionLost, "exhausted automatic retries must surface a terminal connection-lost state")

	// Manual retry is a fresh sequence; the provider now accepts the join.
	require.NoError(t, controller.ManualReconnect(context.Background()))
	assert.False(t, controller.ConnectionLost())

	require.NoError(t, controller.StopSession())
}

func TestPermissionFailureAbortsReconnection(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	controller := newTestController(provider)
	require.NoError(t, controller.StartSession(context.Background(), validParams()))

	// Every rejoin attempt would hit a denied capture device.
	provider.mu.Lock()
	provider.publishErrs = []error{
		media.ErrDeviceUnavailable,
		media.ErrDeviceUnavailable,
		media.ErrDeviceUnavailable,
		media.ErrDeviceUnavailable,
		media.ErrDeviceUnavailable,
	}
	provider.mu.Unlock()

	provider.dropTransport(errNetworkDown)

	eventually(t, controller.ConnectionLost, "a permission failure must surface terminally")
	assert.Equal(t, 2, provider.joinCount(), "permission failures must stop the retry sequence immediately")

	require.NoError(t, controller.StopSession())
}

func TestStopSessionCancelsReconnection(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	controller := newTestController(provider)
	controller.SetPolicy(retry.Policy{
		MaxAttempts:  5,
		InitialDelay: time.Minute,
		MaxDelay:     time.Minute,
		Multiplier:   2,
	})

	require.NoError(t, controller.StartSession(context.Background(), validParams()))

	provider.mu.Lock()
	provider.joinErrs = []error{errNetworkDown, errNetworkDown, errNetworkDown}
	provider.mu.Unlock()

	provider.dropTransport(errNetworkDown)

	eventually(t, func() bool { return provider.joinCount() >= 2 }, "reconnection must start")

	require.NoError(t, controller.StopSession())

	// The cancelled run must not mark the session lost.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, controller.ConnectionLost())
}
