package statserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/statlink/statlink-go/pkg/discovery"
	"github.com/statlink/statlink-go/pkg/discovery/mocks"
	"github.com/statlink/statlink-go/pkg/version"
)

func TestServerAdvertisesOnStart(t *testing.T) {
	adv := mocks.NewMockAdvertiser(t)

	srv := New(Options{
		Address:    "127.0.0.1:0",
		Advertiser: adv,
		Instance:   "statlink-test",
		Name:       "test platform",
	})

	var announced *discovery.PlatformInfo
	adv.EXPECT().Advertise(mock.Anything, mock.Anything).
		Run(func(_ context.Context, info *discovery.PlatformInfo) { announced = info }).
		Return(nil).Once()
	adv.EXPECT().Stop().Return(nil).Once()

	require.NoError(t, srv.Start(context.Background()))
	assert.True(t, srv.Advertising())

	require.NotNil(t, announced)
	assert.Equal(t, "statlink-test", announced.Instance)
	assert.Equal(t, "test platform", announced.Name)
	assert.Equal(t, version.Current, announced.Version)
	assert.Equal(t, uint16(srv.Port()), announced.Port)

	require.NoError(t, srv.Stop())
	assert.False(t, srv.Advertising())
}

func TestServerAdvertiseFailureKeepsServing(t *testing.T) {
	adv := mocks.NewMockAdvertiser(t)
	adv.EXPECT().Advertise(mock.Anything, mock.Anything).Return(errors.New("no multicast")).Once()

	srv := New(Options{Address: "127.0.0.1:0", Advertiser: adv})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	assert.False(t, srv.Advertising())
	assert.NotNil(t, srv.Addr())
	adv.AssertNotCalled(t, "Stop")
}
