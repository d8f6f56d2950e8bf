package output

import (
	"context"
	"testing"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_BackendsSortedByPriority(t *testing.T) {
	f := NewFactory(WithLogger(quietLogger()))
	backends := f.Backends()

	require.Contains(t, backends, NullBackend)
	assert.Equal(t, NullBackend, backends[len(backends)-1])
	assert.NotContains(t, backends, "nonexistent")
}

func TestFactory_DefaultOutputDevice(t *testing.T) {
	f := NewFactory(WithBackend(NullBackend))
	info := f.DefaultOutputDevice()

	assert.Equal(t, NullBackend, info.Backend)
	assert.True(t, info.IsDefault)
	assert.Equal(t, "default", info.Name)
}

func TestFactory_UnknownBackendFailsOnStart(t *testing.T) {
	f := NewFactory(WithLogger(quietLogger()))
	dev := f.CreateOutputDevice(audio.DeviceInfo{Backend: "nonexistent", Name: "x"}, testFormat)
	defer dev.Close()

	assert.Equal(t, audio.StateStopped, dev.State())
	assert.Nil(t, dev.StartWriter())
	assert.Equal(t, audio.OpenError, dev.Error())
	assert.Equal(t, audio.StateStopped, dev.State())
}

func TestFactory_NullBackendPlaysInRealTime(t *testing.T) {
	f := NewFactory(WithBackend(NullBackend), WithLogger(quietLogger()))
	dev := f.CreateDefaultOutputDevice(testFormat)
	defer dev.Close()

	rec := &recorder{}
	dev.SetListener(rec)
	dev.SetBufferSize(testFormat.BytesForDuration(40 * time.Millisecond))
	dev.SetNotifyInterval(10)

	w := dev.StartWriter()
	require.NotNil(t, w)
	assert.Equal(t, audio.StateIdle, dev.State())

	_, err := w.Write(make([]byte, testFormat.BytesForDuration(30*time.Millisecond)))
	require.NoError(t, err)

	// The null driver consumes the data and then underruns
	assert.Eventually(t, func() bool { return dev.Error() == audio.UnderrunError }, eventually, tick)
	assert.Equal(t, audio.StateIdle, dev.State())
	assert.Equal(t, int64(30000), dev.ProcessedUSecs())
	assert.Eventually(t, func() bool { return rec.Notifies() == 3 }, eventually, tick)

	dev.Stop()
	assert.Equal(t, audio.StateStopped, dev.State())
	assert.Equal(t, audio.NoError, dev.Error())
}

func TestFactory_OutputDevicesIncludesNull(t *testing.T) {
	f := NewFactory(WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	devices, err := f.OutputDevices(ctx)
	require.NoError(t, err)

	var found bool
	for _, d := range devices {
		if d.Backend == NullBackend {
			found = true
			assert.True(t, d.IsDefault)
		}
	}
	assert.True(t, found)
}
