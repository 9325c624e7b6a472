package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polling-agent/pkg/plugin"
	"github.com/polling-agent/pkg/sample"
)

const localID = "node-1_abc"

type fakeHost struct {
	times     []cpu.TimesStat
	timeCalls int
	memErr    error
}

func (f *fakeHost) inspector() *Inspector {
	return &Inspector{
		CPUTimes: func(context.Context) ([]cpu.TimesStat, error) {
			f.timeCalls++
			return f.times, nil
		},
		CPUCounts: func(context.Context) (int, error) { return 4, nil },
		VirtualMemory: func(context.Context) (*mem.VirtualMemoryStat, error) {
			if f.memErr != nil {
				return nil, f.memErr
			}
			return &mem.VirtualMemoryStat{Total: 1000, Used: 250, UsedPercent: 25}, nil
		},
		LoadAvg: func(context.Context) (*load.AvgStat, error) {
			return &load.AvgStat{Load1: 1.5, Load5: 1.25, Load15: 1}, nil
		},
		HostInfo: func(context.Context) (*host.InfoStat, error) {
			return &host.InfoStat{Hostname: "node-1", HostID: "abc"}, nil
		},
	}
}

func TestCPUTimes(t *testing.T) {
	ct := CPUTimes{User: 10, System: 5, Idle: 80, Iowait: 5}
	assert.InDelta(t, 100, ct.Total(), 1e-9)
	assert.InDelta(t, 15, ct.Busy(), 1e-9)
}

func TestLocalHostDiscoverer(t *testing.T) {
	d := NewLocalHostDiscoverer((&fakeHost{}).inspector())
	assert.Equal(t, LocalHostDiscovery, d.Name())
	assert.Empty(t, d.GroupID())

	got, err := d.Discover(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{localID}, got)
	assert.Equal(t, "node-1", Hostname(got[0]))
}

func TestResourceIDError(t *testing.T) {
	insp := (&fakeHost{}).inspector()
	insp.HostInfo = func(context.Context) (*host.InfoStat, error) { return nil, errors.New("no host") }
	_, err := NewLocalHostDiscoverer(insp).Discover(context.Background(), "")
	assert.ErrorContains(t, err, "no host")
}

func TestResourceIDRetriesAfterTransientError(t *testing.T) {
	insp := (&fakeHost{}).inspector()
	calls := 0
	insp.HostInfo = func(context.Context) (*host.InfoStat, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return &host.InfoStat{Hostname: "node-1", HostID: "abc"}, nil
	}

	_, err := insp.ResourceID(context.Background())
	require.ErrorContains(t, err, "transient")

	id, err := insp.ResourceID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, localID, id)

	id, err = insp.ResourceID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, localID, id)
	assert.Equal(t, 2, calls)
}

func TestCPUTimePollster(t *testing.T) {
	fh := &fakeHost{times: []cpu.TimesStat{{User: 10, System: 5, Idle: 80, Iowait: 5}}}
	p := NewCPUTimePollster(fh.inspector())
	assert.Equal(t, LocalHostDiscovery, p.DefaultDiscovery())

	got, err := p.GetSamples(context.Background(), plugin.NewCache(), []string{localID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "host.cpu", got[0].Name)
	assert.Equal(t, sample.TypeCumulative, got[0].Type)
	assert.Equal(t, "ns", got[0].Unit)
	assert.InDelta(t, 15e9, got[0].Volume, 1)
	assert.Equal(t, "4", got[0].ResourceMetadata["cpu_number"])
	assert.Equal(t, "node-1", got[0].ResourceMetadata["host"])
	assert.NoError(t, got[0].Validate())
}

func TestCPUPollstersShareCycleCache(t *testing.T) {
	fh := &fakeHost{times: []cpu.TimesStat{{User: 10, Idle: 90}}}
	insp := fh.inspector()
	cache := plugin.NewCache()

	_, err := NewCPUTimePollster(insp).GetSamples(context.Background(), cache, []string{localID})
	require.NoError(t, err)
	_, err = NewCPUUtilPollster(insp).GetSamples(context.Background(), cache, []string{localID})
	require.NoError(t, err)
	assert.Equal(t, 1, fh.timeCalls)
}

func TestCPUUtilPollster(t *testing.T) {
	fh := &fakeHost{times: []cpu.TimesStat{{User: 10, System: 10, Idle: 80}}}
	p := NewCPUUtilPollster(fh.inspector())

	got, err := p.GetSamples(context.Background(), plugin.NewCache(), []string{localID})
	require.NoError(t, err)
	assert.Empty(t, got, "first collection only records the baseline")

	fh.times = []cpu.TimesStat{{User: 40, System: 20, Idle: 140}}
	got, err = p.GetSamples(context.Background(), plugin.NewCache(), []string{localID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	// delta total 100, delta idle 60
	assert.InDelta(t, 40, got[0].Volume, 1e-9)
	assert.Equal(t, "%", got[0].Unit)

	got, err = p.GetSamples(context.Background(), plugin.NewCache(), []string{localID})
	require.NoError(t, err)
	assert.Empty(t, got, "unchanged counters yield nothing")
}

func TestMemoryUsagePollster(t *testing.T) {
	fh := &fakeHost{}
	p := NewMemoryUsagePollster(fh.inspector())
	got, err := p.GetSamples(context.Background(), plugin.NewCache(), []string{localID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "host.memory.usage", got[0].Name)
	assert.InDelta(t, 25, got[0].Volume, 1e-9)
	assert.Equal(t, "1000", got[0].ResourceMetadata["total_bytes"])

	fh.memErr = errors.New("meminfo unreadable")
	_, err = p.GetSamples(context.Background(), plugin.NewCache(), []string{localID})
	assert.ErrorContains(t, err, "meminfo unreadable")
}

func TestLoadPollster(t *testing.T) {
	p := NewLoadPollster((&fakeHost{}).inspector())
	p.goos = "linux"
	got, err := p.GetSamples(context.Background(), plugin.NewCache(), []string{localID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.5, got[0].Volume, 1e-9)
	assert.Equal(t, "1.25", got[0].ResourceMetadata["load5"])

	p.goos = "windows"
	_, err = p.GetSamples(context.Background(), plugin.NewCache(), []string{localID})
	assert.True(t, plugin.IsBenign(err))
}

func TestForeignResourcesAreBenign(t *testing.T) {
	p := NewMemoryUsagePollster((&fakeHost{}).inspector())
	_, err := p.GetSamples(context.Background(), plugin.NewCache(), []string{"other-host"})
	assert.ErrorIs(t, err, plugin.ErrResourceNotFound)

	got, err := p.GetSamples(context.Background(), plugin.NewCache(), []string{"other-host", localID})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRegister(t *testing.T) {
	reg := plugin.NewRegistry()
	require.NoError(t, Register(reg, "compute", (&fakeHost{}).inspector()))
	assert.True(t, reg.HasNamespace("compute"))

	ps, err := reg.Pollsters("compute")
	require.NoError(t, err)
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"host.cpu", "host.cpu.util", "host.load", "host.memory.usage"}, names)

	ds, err := reg.Discoverers()
	require.NoError(t, err)
	assert.Contains(t, ds, LocalHostDiscovery)

	assert.Error(t, Register(reg, "compute", (&fakeHost{}).inspector()), "duplicate registration")
}
