package launch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/bxt-launcher/internal/launch"
	"github.com/mattjoyce/bxt-launcher/internal/launch/mocks"
)

func TestOpenGate_DefaultsName(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	ev := mocks.NewMockEvent(ctrl)
	platform.EXPECT().OpenOrCreateNamedEvent(launch.DefaultEventName).Return(ev, nil)

	g, err := launch.OpenGate(platform, "", launch.GateOptions{})
	require.NoError(t, err)
	assert.Equal(t, launch.DefaultEventName, g.Name())

	ev.EXPECT().Close().Return(nil).Times(1)
	require.NoError(t, g.Close())
	require.NoError(t, g.Close(), "second close is a no-op")
}

func TestGateWait_UnboundedSingleWait(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	ev := mocks.NewMockEvent(ctrl)
	platform.EXPECT().OpenOrCreateNamedEvent("x").Return(ev, nil)
	ev.EXPECT().Wait(launch.WaitForever).Return(true, nil).Times(1)

	g, err := launch.OpenGate(platform, "x", launch.GateOptions{})
	require.NoError(t, err)
	assert.NoError(t, g.Wait(context.Background(), "a.dll"))
}

func TestGateWait_UnboundedWithoutSignal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	ev := mocks.NewMockEvent(ctrl)
	platform.EXPECT().OpenOrCreateNamedEvent(gomock.Any()).Return(ev, nil)
	ev.EXPECT().Wait(launch.WaitForever).Return(false, nil)

	g, err := launch.OpenGate(platform, "x", launch.GateOptions{})
	require.NoError(t, err)

	var waitErr *launch.SignalWaitError
	require.ErrorAs(t, g.Wait(context.Background(), "a.dll"), &waitErr)
	assert.Equal(t, "a.dll", waitErr.Module)
}

func TestGateWait_PollsUntilSignalled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	ev := mocks.NewMockEvent(ctrl)
	platform.EXPECT().OpenOrCreateNamedEvent(gomock.Any()).Return(ev, nil)
	gomock.InOrder(
		ev.EXPECT().Wait(10*time.Millisecond).Return(false, nil).Times(2),
		ev.EXPECT().Wait(10*time.Millisecond).Return(true, nil),
	)

	g, err := launch.OpenGate(platform, "x", launch.GateOptions{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, g.Wait(ctx, "a.dll"))
}

func TestGateWait_NativeFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	ev := mocks.NewMockEvent(ctrl)
	nativeErr := errors.New("invalid handle")
	platform.EXPECT().OpenOrCreateNamedEvent(gomock.Any()).Return(ev, nil)
	ev.EXPECT().Wait(gomock.Any()).Return(false, nativeErr)

	g, err := launch.OpenGate(platform, "x", launch.GateOptions{Timeout: time.Second})
	require.NoError(t, err)

	err = g.Wait(context.Background(), "a.dll")
	assert.ErrorIs(t, err, nativeErr)
	assert.Equal(t, launch.KindSignalWaitFailed, launch.KindOf(err))
}

func TestGateWait_Timeout(t *testing.T) {
	fp := newFakePlatform()
	fp.silent = true

	g, err := launch.OpenGate(fp, "x", launch.GateOptions{Timeout: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	err = g.Wait(context.Background(), "a.dll")
	var timeoutErr *launch.InjectionTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestGateWait_ContextAlreadyDone(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	ev := mocks.NewMockEvent(ctrl)
	platform.EXPECT().OpenOrCreateNamedEvent(gomock.Any()).Return(ev, nil)

	g, err := launch.OpenGate(platform, "x", launch.GateOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.Wait(ctx, "a.dll"), context.Canceled)
}

func TestGate_ClosedRejectsUse(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	ev := mocks.NewMockEvent(ctrl)
	platform.EXPECT().OpenOrCreateNamedEvent(gomock.Any()).Return(ev, nil)
	ev.EXPECT().Close().Return(nil)

	g, err := launch.OpenGate(platform, "x", launch.GateOptions{})
	require.NoError(t, err)
	require.NoError(t, g.Close())

	assert.Error(t, g.Wait(context.Background(), "a.dll"))
	assert.Error(t, g.Reset())
}

func TestOpenGate_Failure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	platform.EXPECT().OpenOrCreateNamedEvent("x").Return(nil, errors.New("denied"))

	_, err := launch.OpenGate(platform, "x", launch.GateOptions{})
	var gateErr *launch.GateError
	require.ErrorAs(t, err, &gateErr)
	assert.Equal(t, "x", gateErr.Name)
}
