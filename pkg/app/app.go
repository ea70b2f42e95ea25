package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Smooother/poolheating/pkg/alarm"
	"github.com/Smooother/poolheating/pkg/api/v1/config"
	"github.com/Smooother/poolheating/pkg/api/v1/meter"
	"github.com/Smooother/poolheating/pkg/api/v1/types"
	"github.com/Smooother/poolheating/pkg/decisionlog"
	"github.com/Smooother/poolheating/pkg/dispatch"
	"github.com/Smooother/poolheating/pkg/heatpump"
	"github.com/Smooother/poolheating/pkg/heatpump/dummy"
	"github.com/Smooother/poolheating/pkg/heatpump/fairland"
	"github.com/Smooother/poolheating/pkg/heatpump/tuya"
	"github.com/Smooother/poolheating/pkg/httpapi"
	"github.com/Smooother/poolheating/pkg/mbus"
	"github.com/Smooother/poolheating/pkg/metrics"
	"github.com/Smooother/poolheating/pkg/modbusclient"
	"github.com/Smooother/poolheating/pkg/pool"
	"github.com/Smooother/poolheating/pkg/price"
	"github.com/Smooother/poolheating/pkg/push"
	"github.com/Smooother/poolheating/pkg/quota"
	"github.com/Smooother/poolheating/pkg/state"
	"github.com/Smooother/poolheating/pkg/status"
	"github.com/Smooother/poolheating/pkg/version"
	"github.com/goburrow/modbus"
	"github.com/sirupsen/logrus"
)

var httpClient = &http.Client{
	Timeout: time.Second * 30,
}

const (
	pushStaleAfter  = 5 * time.Minute
	adapterTimeout  = 10 * time.Second
	cycleBudget     = 2 * time.Minute
	meterStaleAfter = 5 * time.Minute

	// watt. below this the pump is idling, not heating.
	meterPowerThreshold = 100
)

type App struct {
	wg     *sync.WaitGroup
	config *config.CliConfig

	settings   *config.AutomationSettings
	settingsMu sync.RWMutex

	adapter    heatpump.Adapter
	feed       *price.Feed
	pushCache  *push.Cache
	meters     *meter.Cache
	meterBus   *mbus.Mbus
	budget     *quota.Budget
	log        decisionlog.Log
	dispatcher *dispatch.Dispatcher
	arbiter    *status.Arbiter
	alarms     *alarm.ActiveAlarms

	// last successfully fetched price series, kept so a feed outage
	// does not blind the classifier. Touched only by the cycle.
	lastPrices []price.Point

	running atomic.Bool
}

func New(config *config.CliConfig) *App {
	return &App{
		wg:        &sync.WaitGroup{},
		config:    config,
		pushCache: push.NewCache(),
		meters:    &meter.Cache{},
		budget:    quota.New(config.APICallLimit, time.Hour, time.Duration(config.PollMinInterval)*time.Second),
		alarms:    &alarm.ActiveAlarms{},
		feed:      &price.Feed{Server: config.Server, Token: config.Token},
	}
}

func (a *App) Start(ctx context.Context) error {
	err := a.config.LoadToken()
	if err != nil {
		return err
	}

	err = a.setupAdapter()
	if err != nil {
		return err
	}

	log, err := decisionlog.NewSQLite(a.config.DBFile)
	if err != nil {
		return err
	}
	a.log = log

	a.dispatcher = dispatch.New(a.adapter, a.budget, a.pushCache, a.config.Readonly)
	a.arbiter = status.NewArbiter(
		&status.Push{Cache: a.pushCache, DeviceID: a.config.DeviceID, StaleAfter: pushStaleAfter},
		&status.Poll{Adapter: a.adapter, Budget: a.budget, Timeout: adapterTimeout},
		&status.Stored{Store: a.log, DeviceID: a.config.DeviceID},
	)

	_, err = push.Start(ctx, a.wg, a.config.MQTTAddr, a.pushCache)
	if err != nil {
		return err
	}

	settings, err := a.fetchSettings(ctx)
	if err != nil {
		logrus.Warnf("start: settings fetch failed, first cycle retries: %s", err)
	} else if err := settings.Validate(); err != nil {
		return fmt.Errorf("settings from cloud: %w", err)
	} else {
		a.applySettings(settings)
	}

	a.wg.Add(1)
	go a.serveHTTP(ctx)

	a.wg.Add(1)
	go a.controllerLoop(ctx)
	return nil
}

func (a *App) Wait() {
	a.wg.Wait()
	if a.meterBus != nil {
		a.meterBus.Close()
	}
	if a.log != nil {
		err := a.log.Close()
		if err != nil {
			logrus.Errorf("closing decision log: %s", err)
		}
	}
}

func (a *App) setupAdapter() error {
	switch types.AdapterType(a.config.AdapterType) {
	case types.AdapterTypeTuya:
		a.adapter = tuya.New(a.config.Server, a.config.Token(), a.config.DeviceID)
	case types.AdapterTypeFairland:
		handler := modbus.NewTCPClientHandler(a.config.Address)
		handler.SlaveId = 1
		a.adapter = fairland.New(modbusclient.New(modbus.NewClient(handler), handler.Close), a.config.DeviceID)
	case types.AdapterTypeDummy:
		a.adapter = dummy.New(a.config.DeviceID)
	default:
		return fmt.Errorf("unknown AdapterType: %s", a.config.AdapterType)
	}
	return nil
}

func (a *App) controllerLoop(ctx context.Context) {
	defer a.wg.Done()
	delay := nextDelay()
	timer := time.NewTimer(delay)
	a.runScheduled(ctx)
	logrus.Debug("scheduling next run in ", delay)
	for {
		select {
		case <-timer.C:
			timer.Reset(nextDelay())
			a.runScheduled(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) runScheduled(ctx context.Context) {
	_, err := a.RunCycle(ctx)
	if err != nil {
		logrus.Errorf("cycle: %s", err)
	}
}

func (a *App) serveHTTP(ctx context.Context) {
	defer a.wg.Done()

	srv := &http.Server{
		Addr:    a.config.ListenAddr,
		Handler: httpapi.NewServer(a, a.log, a.budget, a.alarms, a.config.DeviceID).Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			logrus.Errorf("httpapi: shutdown: %s", err)
		}
	}()

	logrus.Infof("httpapi: listening on %s", a.config.ListenAddr)
	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logrus.Errorf("httpapi: %s", err)
	}
}

// RunCycle runs one decision cycle. Scheduled and manually triggered
// runs share the same guard so only one can be in flight.
func (a *App) RunCycle(ctx context.Context) (*pool.Record, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, pool.ErrCycleRunning
	}
	defer a.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, cycleBudget)
	defer cancel()

	started := time.Now()
	record := a.cycle(ctx)
	metrics.CycleDuration.Observe(time.Since(started).Seconds())
	metrics.CyclesTotal.WithLabelValues(string(record.Outcome)).Inc()
	metrics.QuotaUsed.Set(float64(a.budget.Snapshot().Used))

	if _, err := a.log.Append(ctx, record); err != nil {
		logrus.Errorf("cycle: appending record: %s", err)
	}
	a.syncDecisions(ctx)

	logrus.Infof("cycle: %s %.2f -> %.2f (%s)", record.Outcome, record.PreviousSetpoint, record.AppliedSetpoint, record.Reason)
	return record, nil
}

func (a *App) cycle(ctx context.Context) *pool.Record {
	now := time.Now()
	deviceID := a.config.DeviceID

	settings, failed := a.cycleSettings(ctx, now)
	if failed != nil {
		return failed
	}

	points, priceStale := a.cyclePrices(ctx, settings, now)
	var cls price.Classification
	if current, ok := price.Current(points, now); ok {
		cls = price.Classify(points, current.Value, now, price.ClassifierConfig{
			Method:         price.Method(settings.ClassificationMethod),
			WindowDays:     settings.RollingWindowDays,
			DeltaPercent:   settings.DeltaPercent,
			PercentileLow:  settings.PercentileLow,
			PercentileHigh: settings.PercentileHigh,
		})
	} else {
		logrus.Warn("cycle: no price covers the current hour, grading NORMAL")
		cls = price.Classification{Level: price.LevelNormal}
		priceStale = true
	}

	st, err := a.arbiter.Resolve(ctx)
	if err != nil {
		logrus.Errorf("cycle: no status source answered: %s", err)
		record := pool.FailedStatus(now, deviceID, err)
		a.reconcileAlarms(record, nil, priceStale)
		return record
	}
	metrics.StatusSourceTotal.WithLabelValues(string(st.Source)).Inc()

	meterData := a.readMeters(settings, now)
	status.CorroborateMeter(st, meterData, meterPowerThreshold)

	record := pool.EvaluateGuards(*st, settings, now)
	if record != nil {
		record.Price = cls.Price
		record.Level = cls.Level
		record.PriceAverage = cls.Average
		record.CoverageDays = cls.CoverageDays
	} else {
		lastChange, err := a.log.LastChange(ctx, deviceID)
		if err != nil {
			logrus.Errorf("cycle: reading last change: %s", err)
		}
		record = pool.Decide(pool.Inputs{
			Now:            now,
			Classification: cls,
			Status:         *st,
			LastChangeAt:   lastChange,
			Settings:       settings,
		})
	}
	if meterData != nil {
		record.MeterPowerW = &meterData.Current_W
	}

	a.dispatcher.Dispatch(ctx, record)

	if record.Dispatched && record.Outcome != pool.OutcomeFailed && !record.Pending {
		st.Setpoint = record.AppliedSetpoint
	}
	if err := a.log.SaveStatus(ctx, *st); err != nil {
		logrus.Errorf("cycle: saving status: %s", err)
	}

	metrics.CurrentSetpoint.Set(st.Setpoint)
	if st.WaterTemp != nil {
		metrics.WaterTemp.Set(*st.WaterTemp)
	}
	for _, l := range []price.Level{price.LevelLow, price.LevelNormal, price.LevelHigh} {
		v := 0.0
		if l == cls.Level {
			v = 1
		}
		metrics.PriceLevel.WithLabelValues(string(l)).Set(v)
	}

	a.reconcileAlarms(record, st, priceStale)
	return record
}

// cycleSettings fetches the automation profile for this cycle. A fetch
// failure keeps the previous profile, no profile at all fails the cycle.
func (a *App) cycleSettings(ctx context.Context, now time.Time) (*config.AutomationSettings, *pool.Record) {
	settings, err := a.fetchSettings(ctx)
	if err != nil {
		prev := a.currentSettings()
		if prev == nil {
			return nil, &pool.Record{
				Time:     now,
				DeviceID: a.config.DeviceID,
				Outcome:  pool.OutcomeFailed,
				Reason:   "no automation settings: " + err.Error(),
			}
		}
		logrus.Warnf("cycle: settings fetch failed, keeping last profile: %s", err)
		return prev, nil
	}
	if err := settings.Validate(); err != nil {
		return nil, &pool.Record{
			Time:     now,
			DeviceID: a.config.DeviceID,
			Outcome:  pool.OutcomeFailed,
			Reason:   "invalid settings: " + err.Error(),
		}
	}
	a.applySettings(settings)
	return settings, nil
}

func (a *App) currentSettings() *config.AutomationSettings {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.settings
}

func (a *App) applySettings(s *config.AutomationSettings) {
	a.settingsMu.Lock()
	old := a.settings
	a.settings = s
	a.settingsMu.Unlock()

	if config.SettingsNeedAdapterSetup(old, s) && len(s.Meters) > 0 && a.meterBus == nil {
		a.meterBus = mbus.New(a.config.MbusDevice)
	}
}

func (a *App) cyclePrices(ctx context.Context, s *config.AutomationSettings, now time.Time) ([]price.Point, bool) {
	start := now.Add(-time.Duration(s.RollingWindowDays) * 24 * time.Hour)
	points, err := a.feed.Fetch(ctx, s.BiddingZone, start, now.Add(24*time.Hour))
	if err != nil {
		logrus.Warnf("cycle: price fetch failed, using cached series: %s", err)
		return a.lastPrices, true
	}
	a.lastPrices = points
	return points, false
}

func (a *App) readMeters(s *config.AutomationSettings, now time.Time) *meter.Data {
	if a.meterBus != nil {
		for _, m := range s.Meters {
			if m.InterfaceType != "mbus" {
				continue
			}
			d, err := a.meterBus.ReadValues(m.Model, m.PrimaryID)
			if err != nil {
				logrus.Warnf("cycle: meter %s: %s", m.PrimaryID, err)
				continue
			}
			a.meters.Set(d)
			break
		}
	}
	return a.meters.GetFresh(now, meterStaleAfter)
}

func (a *App) reconcileAlarms(r *pool.Record, st *state.Status, priceStale bool) {
	var conditions []string
	if st == nil {
		conditions = append(conditions, alarm.StatusUnavailable)
	} else if st.Source == state.SourceCached {
		conditions = append(conditions, alarm.StatusCached)
	}
	snap := a.budget.Snapshot()
	if snap.Used >= snap.Limit {
		conditions = append(conditions, alarm.QuotaExhausted)
	}
	if priceStale {
		conditions = append(conditions, alarm.PriceFeedStale)
	}
	if r.Level != "" && r.CoverageDays < 1 {
		conditions = append(conditions, alarm.ShortPriceHistory)
	}
	if st != nil && st.Alarm != nil && *st.Alarm {
		conditions = append(conditions, alarm.DeviceFault)
	}
	if r.Pending {
		conditions = append(conditions, alarm.ConfirmPending)
	}

	raised, cleared := a.alarms.Sync(conditions)
	for _, name := range raised {
		logrus.Warnf("alarm raised: %s", name)
	}
	for _, name := range cleared {
		logrus.Infof("alarm cleared: %s", name)
	}
}

func (a *App) fetchSettings(ctx context.Context) (*config.AutomationSettings, error) {
	u := fmt.Sprintf("%s/api/controller/settings-v1", a.config.Server)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("Authorization", a.config.Token())

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("error fetching settings StatusCode: %d", resp.StatusCode)
	}

	// fields the cloud omits keep their defaults
	response := config.DefaultSettings()
	err = json.NewDecoder(resp.Body).Decode(response)
	return response, err
}

type syncPayload struct {
	Records []*pool.Record  `json:"records"`
	Alarms  []string        `json:"alarms"`
	Version json.RawMessage `json:"version"`
}

// syncDecisions uploads everything not yet acknowledged by the cloud.
// Failures are soft, records stay local and are retried next cycle.
func (a *App) syncDecisions(ctx context.Context) {
	records, err := a.log.Unsynced(ctx, 100)
	if err != nil {
		logrus.Errorf("sync: reading unsynced records: %s", err)
		return
	}
	if len(records) == 0 {
		return
	}

	body, err := json.Marshal(&syncPayload{
		Records: records,
		Alarms:  a.alarms.Active(),
		Version: json.RawMessage(version.Version),
	})
	if err != nil {
		logrus.Errorf("sync: %s", err)
		return
	}

	u := fmt.Sprintf("%s/api/controller/decisions-v1", a.config.Server)
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		logrus.Errorf("sync: %s", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("Authorization", a.config.Token())

	resp, err := httpClient.Do(req)
	if err != nil {
		metrics.DecisionSyncFailures.Inc()
		logrus.Errorf("sync: %s", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		metrics.DecisionSyncFailures.Inc()
		logrus.Errorf("sync: StatusCode: %d", resp.StatusCode)
		return
	}

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	err = a.log.MarkSynced(ctx, ids)
	if err != nil {
		logrus.Errorf("sync: marking %d records synced: %s", len(ids), err)
	}
}
