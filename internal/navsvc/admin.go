package navsvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/httputil"
	"github.com/banshee-data/tmsnav/internal/loop"
	"github.com/banshee-data/tmsnav/internal/network"
	"github.com/banshee-data/tmsnav/internal/plan"
	"github.com/banshee-data/tmsnav/internal/protocol"
	"github.com/banshee-data/tmsnav/internal/robot"
)

// StatusCode maps an operation error onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, network.ErrCommandTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, network.ErrChannelClosed),
		errors.Is(err, loop.ErrStopped),
		errors.Is(err, loop.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, plan.ErrNoTarget),
		errors.Is(err, plan.ErrNoSurface),
		errors.Is(err, ErrNoSkin):
		return http.StatusConflict
	case errors.Is(err, plan.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrUnknownCommand),
		errors.Is(err, ErrTooFewLandmarks),
		errors.Is(err, robot.ErrUnknownCommand),
		errors.Is(err, robot.ErrUnknownDirection),
		errors.Is(err, plan.ErrInvalidLandmarkCount),
		errors.Is(err, plan.ErrInvalidGridCount),
		errors.Is(err, plan.ErrNoIntersection),
		errors.Is(err, geom.ErrGeometryDegenerate),
		errors.Is(err, protocol.ErrMessageTooLong):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ParseVector parses "x,y,z".
func ParseVector(s string) ([3]float64, error) {
	var v [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("%w: vector %q needs 3 components", ErrInvalidArgument, s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v, fmt.Errorf("%w: vector %q: %v", ErrInvalidArgument, s, err)
		}
		v[i] = f
	}
	return v, nil
}

// ParsePoints parses points separated by semicolons: "x,y,z;x,y,z".
func ParsePoints(s string) ([]geom.Point3, error) {
	var pts []geom.Point3
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		v, err := ParseVector(part)
		if err != nil {
			return nil, err
		}
		pts = append(pts, geom.Point3{X: v[0], Y: v[1], Z: v[2]})
	}
	return pts, nil
}

func formFloat(r *http.Request, key string) (float64, error) {
	s := strings.TrimSpace(r.FormValue(key))
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, key, err)
	}
	return f, nil
}

func formInt(r *http.Request, key string) (int, error) {
	s := strings.TrimSpace(r.FormValue(key))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, key, err)
	}
	return n, nil
}

func formBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(r.FormValue(key)))
	return b
}

// ActionResult is the JSON body of a successful action.
type ActionResult struct {
	Action   string    `json:"action"`
	Pose     *PoseView `json:"pose,omitempty"`
	Index    *int      `json:"index,omitempty"`
	Residual string    `json:"residual,omitempty"`
	Reply    string    `json:"reply,omitempty"`
	Grid     *GridView `json:"grid,omitempty"`
}

func (res *ActionResult) setPose(p geom.Pose) {
	res.Pose = newPoseView(&p)
}

// medImgAction runs one named MedImg operation with arguments from r.
func (s *Service) medImgAction(r *http.Request) (ActionResult, error) {
	action := strings.TrimSpace(r.FormValue("action"))
	res := ActionResult{Action: action}
	m := s.medImg

	var fn func() error
	switch action {
	case "push-landmarks", "plan":
		pts, err := ParsePoints(r.FormValue("landmarks"))
		if err != nil {
			return res, err
		}
		if action == "push-landmarks" {
			fn = func() error { return m.PushLandmarks(pts) }
			break
		}
		fn = func() error {
			p, err := m.PlanPose(pts)
			res.setPose(p)
			return err
		}
	case "digitize":
		idx, err := formInt(r, "index")
		if err != nil {
			return res, err
		}
		prev := formBool(r, "with_previous")
		fn = func() error { return m.Digitize(idx, prev) }
	case "command":
		name := strings.TrimSpace(r.FormValue("name"))
		fn = func() error { return m.Command(name) }
	case "register":
		prev := formBool(r, "use_previous")
		fn = func() error {
			var err error
			res.Residual, err = m.Register(prev)
			return err
		}
	case "register-icp":
		path := r.FormValue("mesh")
		fn = func() error { return m.RegisterICP(path) }
	case "policy":
		p, err := plan.ParsePolicy(r.FormValue("policy"))
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		fn = func() error {
			pose, err := m.SetPolicy(p)
			if pose != nil {
				res.setPose(*pose)
			}
			return err
		}
	case "plan-on-brain":
		on := formBool(r, "on")
		fn = func() error {
			m.SetPlanOnBrain(on)
			return nil
		}
	case "adjust":
		var dT, dR [3]float64
		var err error
		if v := r.FormValue("dt"); v != "" {
			if dT, err = ParseVector(v); err != nil {
				return res, err
			}
		}
		if v := r.FormValue("dr"); v != "" {
			if dR, err = ParseVector(v); err != nil {
				return res, err
			}
		}
		fn = func() error {
			p, err := m.Adjust(dT, dR)
			res.setPose(p)
			return err
		}
	case "randomize":
		fn = func() error {
			p, err := m.Randomize()
			res.setPose(p)
			return err
		}
	case "grid":
		count, err := formInt(r, "count")
		if err != nil {
			return res, err
		}
		spacing, err := formFloat(r, "spacing")
		if err != nil {
			return res, err
		}
		fn = func() error {
			g, err := m.PlanGrid(count, spacing)
			if err == nil {
				res.Grid = NewPlanView(plan.State{Grid: g}).Grid
			}
			return err
		}
	case "grid-next":
		fn = func() error {
			p, idx, err := m.GridNext()
			res.setPose(p)
			res.Index = &idx
			return err
		}
	case "tre-start":
		fn = m.StartTRE
	case "tre-stop":
		fn = m.StopTRE
	default:
		return res, fmt.Errorf("%w: medimg action %q", ErrInvalidArgument, action)
	}
	if err := s.Exec(r.Context(), fn); err != nil {
		return ActionResult{Action: action}, err
	}
	return res, nil
}

func (s *Service) targetVizAction(r *http.Request) (ActionResult, error) {
	action := strings.TrimSpace(r.FormValue("action"))
	res := ActionResult{Action: action}
	switch action {
	case "start":
		return res, s.Exec(r.Context(), s.targetViz.Start)
	case "stop":
		return res, s.Exec(r.Context(), s.targetViz.Stop)
	}
	return res, fmt.Errorf("%w: targetviz action %q", ErrInvalidArgument, action)
}

func (s *Service) robotJog(r *http.Request) (ActionResult, error) {
	res := ActionResult{Action: "jog"}
	d, err := robot.ParseDirection(r.FormValue("direction"))
	if err != nil {
		return res, err
	}
	value, err := formFloat(r, "value")
	if err != nil {
		return res, err
	}
	return res, s.Exec(r.Context(), func() error {
		if value == 0 {
			return s.robot.Jog(d)
		}
		return s.robot.JogBy(d, value)
	})
}

func (s *Service) robotCommand(r *http.Request) (ActionResult, error) {
	name := strings.TrimSpace(r.FormValue("name"))
	res := ActionResult{Action: name}
	err := s.Exec(r.Context(), func() error {
		reply, err := s.robot.Do(name)
		res.Reply = string(reply)
		return err
	})
	if err != nil {
		return ActionResult{Action: name}, err
	}
	return res, nil
}

func (s *Service) postHandler(action func(*http.Request) (ActionResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		res, err := action(r)
		if err != nil {
			s.log.Printf("%s %s: %v", r.URL.Path, res.Action, err)
			httputil.WriteError(w, err, StatusCode)
			return
		}
		httputil.WriteJSONOK(w, res)
	}
}

// AttachAdminRoutes registers the status, plan stream and action routes on
// the tsweb debug page of mux.
func (s *Service) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("tmsnav", "Navigation module status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		httputil.WriteJSONOK(w, s.Status())
	})

	debug.HandleSilentFunc("medimg-action", s.postHandler(s.medImgAction))
	debug.HandleSilentFunc("targetviz-action", s.postHandler(s.targetVizAction))
	debug.HandleSilentFunc("robot-jog", s.postHandler(s.robotJog))
	debug.HandleSilentFunc("robot-command", s.postHandler(s.robotCommand))
	debug.HandleFunc("tre-chart", "TRE history chart", s.handleTREChart)

	// Server-sent events carrying the planner state after every change,
	// starting with the current one.
	debug.HandleSilentFunc("plan-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.planner.Subscribe()
		defer s.planner.Unsubscribe(id)

		send := func(st plan.State) bool {
			payload, err := json.Marshal(NewPlanView(st))
			if err != nil {
				return false
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}
		if !send(s.planner.Snapshot()) {
			return
		}
		for {
			select {
			case st, ok := <-c:
				if !ok || !send(st) {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	})
}
