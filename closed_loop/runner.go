package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"tailsitter-core/closed_loop/attitude"
	"tailsitter-core/closed_loop/plant"
	"tailsitter-core/closed_loop/tailsitter"
	"tailsitter-core/utils"

	"go.einride.tech/can"
)

// pilotCmdTimeout is how long a PILOT_CMD frame overrides the scenario
// timeline.
const pilotCmdTimeout = 500 * time.Millisecond

type RunnerConfig struct {
	Interface    string // empty runs on an in-process loopback bus
	MapPath      string
	ScenarioPath string
	ParamsPath   string // empty uses the built-in defaults
	LiftPath     string // empty uses the built-in lift table
	PlotPath     string
	DBPath       string
	WSAddr       string
}

type Runner struct {
	cfg    RunnerConfig
	log    *utils.Logger
	cmap   *utils.CANMap
	scen   Scenario
	params *tailsitter.ParamStore
	ctrl   *tailsitter.Controller
	sim    *plant.Sim
	writer utils.CANWriter
	reader utils.CANReader
	hub    *utils.TelemetryHub
	flight *utils.FlightLog
	http   *http.Server

	txFrames []txFrame

	// latest PILOT_CMD from the bus
	pilotMu   sync.Mutex
	busPilot  PilotCmd
	busPilotT time.Time

	abortReason string
	modeEdges   int
	trace       []tracePoint
}

// txFrame is a transmitted frame with its period in controller ticks.
type txFrame struct {
	def   *utils.FrameDef
	every int
}

// tracePoint is one logged sample kept for the plot.
type tracePoint struct {
	t        float64
	mode     tailsitter.Mode
	pitchSp  float64
	pitch    float64
	thrust   float64
	airspeed float64
	altitude float64
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	scen, err := LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	params := tailsitter.DefaultParams()
	if cfg.ParamsPath != "" {
		if params, err = tailsitter.LoadParams(cfg.ParamsPath); err != nil {
			return nil, fmt.Errorf("load params: %w", err)
		}
	}
	if params, err = scen.ApplyParams(params); err != nil {
		return nil, err
	}

	var lift *tailsitter.LiftTable
	if cfg.LiftPath != "" {
		if lift, err = tailsitter.LoadLiftTable(cfg.LiftPath); err != nil {
			return nil, fmt.Errorf("load lift table: %w", err)
		}
	}

	plantCfg, err := scen.PlantConfig()
	if err != nil {
		return nil, err
	}

	schedule, err := scen.FrontSchedule()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		log:    log,
		cmap:   cmap,
		scen:   scen,
		params: tailsitter.NewParamStore(params),
		sim:    plant.NewSim(plantCfg, lift, scen.InitialVehicleState()),
	}
	r.ctrl = tailsitter.NewController(tailsitter.Config{
		Params:        r.params,
		Logger:        log,
		Abort:         func(reason string) { r.abortReason = reason },
		LiftTable:     lift,
		FrontSchedule: schedule,
	})

	for _, name := range []string{utils.FrameActuatorOut0, utils.FrameActuatorOut1, utils.FrameVTOLStatus} {
		fd, err := cmap.FrameByName(name)
		if err != nil {
			return nil, fmt.Errorf("frame: %w", err)
		}
		if fd.CycleMS <= 0 {
			return nil, fmt.Errorf("frame %s has invalid cycle_ms %d", fd.Name, fd.CycleMS)
		}
		every := max(1, int(math.Round(float64(fd.CycleMS)/(scen.Timing.DtS*1000))))
		r.txFrames = append(r.txFrames, txFrame{def: fd, every: every})
	}
	if _, err := cmap.FrameByName(utils.FramePilotCmd); err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}

	if err := r.openBus(ctx); err != nil {
		r.Close()
		return nil, err
	}

	if cfg.DBPath != "" {
		if r.flight, err = utils.OpenFlightLog(cfg.DBPath); err != nil {
			r.Close()
			return nil, err
		}
		id, err := r.flight.StartSession(scen.Meta.Name, params)
		if err != nil {
			r.Close()
			return nil, err
		}
		log.Info("Flight log session %s in %s", id, cfg.DBPath)
	}

	if cfg.WSAddr != "" {
		if err := r.serveTelemetry(); err != nil {
			r.Close()
			return nil, err
		}
	}

	return r, nil
}

func (r *Runner) openBus(ctx context.Context) error {
	if r.cfg.Interface == "" {
		bus := utils.NewLoopbackBus(256, 1024)
		r.writer, r.reader = bus, bus
		return nil
	}

	writer, err := utils.NewSocketCANWriter(ctx, r.cfg.Interface)
	if err != nil {
		return err
	}
	r.writer = writer

	reader, err := utils.NewSocketCANReader(ctx, r.cfg.Interface)
	if err != nil {
		return err
	}
	r.reader = reader
	return nil
}

func (r *Runner) serveTelemetry() error {
	ln, err := net.Listen("tcp", r.cfg.WSAddr)
	if err != nil {
		return fmt.Errorf("telemetry listen: %w", err)
	}
	r.hub = utils.NewTelemetryHub(r.log)
	r.http = &http.Server{Handler: r.hub.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := r.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("telemetry server: %v", err)
		}
	}()
	r.log.Info("Telemetry on ws://%s/ws", ln.Addr())
	return nil
}

func (r *Runner) Close() {
	if r.http != nil {
		_ = r.http.Close()
	}
	if r.hub != nil {
		r.hub.Close()
	}
	if r.flight != nil {
		_ = r.flight.Close()
	}
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

// ReloadParams re-reads the parameter file and hands it to the controller,
// which picks it up on its next tick.
func (r *Runner) ReloadParams() error {
	if r.cfg.ParamsPath == "" {
		return errors.New("no parameter file configured")
	}
	p, err := tailsitter.LoadParams(r.cfg.ParamsPath)
	if err != nil {
		return err
	}
	if p, err = r.scen.ApplyParams(p); err != nil {
		return err
	}
	r.params.Set(p)
	r.log.Info("Parameters reloaded from %s", r.cfg.ParamsPath)
	return nil
}

func (r *Runner) Run(ctx context.Context) error {
	dt := r.scen.Timing.DtS
	ticks := int(math.Round(r.scen.Timing.DurationS / dt))
	logEvery := max(1, int(math.Round(1/(r.scen.Timing.LogHz*dt))))

	iface := r.cfg.Interface
	if iface == "" {
		iface = "loopback"
	}
	r.log.Info("Starting run: scenario=%s duration=%.2fs dt=%.3f iface=%s real_time=%v",
		r.scen.Meta.Name, r.scen.Timing.DurationS, dt, iface, r.scen.Timing.RealTimeMode)

	rxCtx, stopRX := context.WithCancel(ctx)
	defer stopRX()
	go r.receiveLoop(rxCtx)

	var ticker *time.Ticker
	if r.scen.Timing.RealTimeMode {
		ticker = time.NewTicker(time.Duration(dt * float64(time.Second)))
		defer ticker.Stop()
	}

	const startUS = 1_000_000
	for tick := 0; tick < ticks; tick++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				r.log.Warn("Context canceled; stopping at tick %d", tick)
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			r.log.Warn("Context canceled; stopping at tick %d", tick)
			return err
		}

		nowUS := uint64(startUS + int64(math.Round(float64(tick)*dt*1e6)))
		if err := r.step(ctx, tick, nowUS, dt, tick%logEvery == 0); err != nil {
			return err
		}
	}

	st := r.sim.State()
	r.log.Info("Completed run. final_mode=%s mode_edges=%d altitude=%.1fm airspeed=%.1fm/s",
		r.ctrl.Mode(), r.modeEdges, -st.Pos.Z, st.Airspeed)
	if r.hub != nil {
		if n := r.hub.Dropped(); n > 0 {
			r.log.Warn("Telemetry dropped %d messages for slow clients", n)
		} else {
			r.log.Info("Telemetry delivered to %d clients without drops", r.hub.Clients())
		}
	}

	if r.cfg.PlotPath != "" {
		if err := writePlot(r.cfg.PlotPath, r.scen.Meta.Name, r.trace); err != nil {
			return fmt.Errorf("plot: %w", err)
		}
		r.log.Info("Plot written to %s", r.cfg.PlotPath)
	}
	return nil
}

// step runs one controller tick against the plant.
func (r *Runner) step(ctx context.Context, tick int, nowUS uint64, dt float64, sample bool) error {
	t := float64(tick) * dt
	cmd := r.pilot(t)
	r.sim.SetArmed(cmd.Armed)

	in := r.sim.Inputs(nowUS, plant.Pilot{
		FixedWingRequested: cmd.FixedWingRequested,
		SweepRequested:     cmd.SweepRequested,
	}, dt)

	r.abortReason = ""
	prev := r.ctrl.Mode()
	out := r.ctrl.Update(in)
	r.sim.Apply(out, dt)

	reason := out.ModeReason
	if out.Mode != prev {
		r.modeEdges++
		r.log.Debug("t=%.3f mode %s -> %s: %s", t, prev, out.Mode, reason)
	} else if r.abortReason != "" {
		// an abort that leaves the mode alone is still logged as an event
		reason = r.abortReason
	}
	if reason != "" && r.flight != nil {
		ev := utils.ModeEvent{TimeS: t, From: prev.String(), To: out.Mode.String(), Reason: reason}
		if err := r.flight.RecordModeEvent(ev); err != nil {
			r.log.Error("flight log: %v", err)
		}
	}

	if err := r.transmit(ctx, tick, out); err != nil {
		return err
	}

	if sample {
		r.record(t, in, out)
	}
	return nil
}

// pilot returns the bus command while fresh, else the scenario timeline.
func (r *Runner) pilot(t float64) PilotCmd {
	r.pilotMu.Lock()
	defer r.pilotMu.Unlock()
	if !r.busPilotT.IsZero() && time.Since(r.busPilotT) < pilotCmdTimeout {
		return r.busPilot
	}
	return EvalPilotCmd(&r.scen, t)
}

func (r *Runner) transmit(ctx context.Context, tick int, out tailsitter.Outputs) error {
	for _, tf := range r.txFrames {
		if tick%tf.every != 0 {
			continue
		}
		values := r.frameValues(tf.def.Name, out)
		frame, err := r.cmap.EncodeEinrideFrame(tf.def.Name, values)
		if err != nil {
			r.log.Error("Encode %s failed at tick %d: %v", tf.def.Name, tick, err)
			return err
		}
		if err := r.writer.WriteFrame(ctx, frame); err != nil {
			r.log.Critical("Transmit %s failed at tick %d: %v", tf.def.Name, tick, err)
			return err
		}
		r.log.Trace("TX id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])
	}
	return nil
}

func (r *Runner) frameValues(name string, out tailsitter.Outputs) map[string]float64 {
	switch name {
	case utils.FrameActuatorOut0:
		c := out.Actuators0.Control
		return map[string]float64{
			"roll":     c[tailsitter.IndexRoll],
			"pitch":    c[tailsitter.IndexPitch],
			"yaw":      c[tailsitter.IndexYaw],
			"throttle": c[tailsitter.IndexThrottle],
		}
	case utils.FrameActuatorOut1:
		return map[string]float64{
			"elevon_roll":  out.Actuators1.Control[0],
			"elevon_pitch": out.Actuators1.Control[1],
		}
	default:
		st := out.Status
		return map[string]float64{
			"mode":          float64(out.Mode),
			"in_trans_mode": plant.BoolToFloat(st.InTransMode),
			"sysidt_state":  float64(r.ctrl.SysidtState()),
			"pitch_sp_deg":  st.PitchSp * 180 / math.Pi,
			"thrust_cmd":    -out.AttitudeSetpoint.ThrustBody[2],
			"airspeed_mps":  r.sim.State().Airspeed,
			"aoa_deg":       st.AOA * 180 / math.Pi,
		}
	}
}

func (r *Runner) record(t float64, in tailsitter.Inputs, out tailsitter.Outputs) {
	st := r.sim.State()
	pitch := attitude.EulerZXYFromQuat(st.Att).Theta
	r.trace = append(r.trace, tracePoint{
		t:        t,
		mode:     out.Mode,
		pitchSp:  out.AttitudeSetpoint.PitchBody,
		pitch:    pitch,
		thrust:   -out.AttitudeSetpoint.ThrustBody[2],
		airspeed: in.IndicatedAirspeed,
		altitude: -st.Pos.Z,
	})

	if r.hub != nil {
		if err := r.hub.Broadcast(out.Status); err != nil {
			r.log.Warn("telemetry: %v", err)
		}
	}

	if r.flight != nil {
		status := out.Status
		blob, err := json.Marshal(status)
		if err != nil {
			r.log.Error("flight log: %v", err)
			return
		}
		err = r.flight.RecordSample(utils.FlightSample{
			TimeS:           t,
			Mode:            status.Mode,
			PitchSp:         status.PitchSp,
			PitchAng:        status.PitchAng,
			ThrustCmd:       status.ThrustCmd,
			VzCmd:           status.VzCmd,
			AOA:             status.AOA,
			CL:              status.CL,
			LiftWeightRatio: status.LiftWeightRatio,
			Airspeed:        in.IndicatedAirspeed,
			Altitude:        -st.Pos.Z,
			SideslipAng:     status.SideslipAng,
			SysidtState:     status.SysidtState,
			Status:          blob,
		})
		if err != nil {
			r.log.Error("flight log: %v", err)
		}
	}
}

// receiveLoop continuously reads CAN frames and latches PILOT_CMD
func (r *Runner) receiveLoop(ctx context.Context) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	for {
		frame, err := r.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, utils.ErrBusClosed) {
				return
			}
			r.log.Error("RX error: %v", err)
			continue
		}
		r.handleFrame(frame)
	}
}

func (r *Runner) handleFrame(frame can.Frame) {
	fd, err := r.cmap.FrameByID(frame.ID)
	if err != nil || fd.Name != utils.FramePilotCmd {
		return
	}
	_, vals, err := r.cmap.DecodeEinrideFrame(frame)
	if err != nil {
		r.log.Warn("RX %s: %v", fd.Name, err)
		return
	}

	cmd := PilotCmd{
		FixedWingRequested: vals["fw_requested"] >= 0.5,
		SweepRequested:     vals["sweep_requested"] >= 0.5,
		Armed:              vals["armed"] >= 0.5,
	}
	r.pilotMu.Lock()
	r.busPilot = cmd
	r.busPilotT = time.Now()
	r.pilotMu.Unlock()
	r.log.Trace("RX pilot fw=%v sweep=%v armed=%v", cmd.FixedWingRequested, cmd.SweepRequested, cmd.Armed)
}
