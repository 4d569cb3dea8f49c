package action

import (
	"context"
	"fmt"
)

func init() {
	Register("configure-init-service", func() Action { return &ConfigureInitServiceAction{} })
	Register("start-daemon", func() Action { return &StartDaemonAction{} })
	Register("enable-socket", func() Action { return &EnableSocketAction{} })
}

// ConfigureInitServiceAction writes a supervisor unit file. Supervisor is
// one of "systemd", "launchd", or "none" (in which case this action is a
// planned no-op, used by container/WSL2 installs with --init none).
type ConfigureInitServiceAction struct {
	Base

	Supervisor  string
	UnitPath    string
	UnitContent string

	skip bool
}

func (a *ConfigureInitServiceAction) Kind() string              { return "configure-init-service" }
func (a *ConfigureInitServiceAction) Reversibility() Reversibility { return Lossless }
func (a *ConfigureInitServiceAction) Children() []Action         { return nil }

func (a *ConfigureInitServiceAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("configure-init-service %s", a.UnitPath))
	if a.Supervisor == "none" {
		a.skip = true
		a.markPlanned([]string{"no init supervisor selected, nothing to configure"})
		return nil
	}
	a.markPlanned([]string{fmt.Sprintf("write %s unit file %s", a.Supervisor, a.UnitPath)})
	return nil
}

func (a *ConfigureInitServiceAction) TryExecute(ctx context.Context, host Host) error {
	if a.skip {
		a.markCompleted(nil)
		return nil
	}
	if err := host.WriteUnitFile(a.UnitPath, a.UnitContent); err != nil {
		return NewTaggedError(TagActionFailed, a.Synopsis(), err)
	}
	a.markCompleted([]string{fmt.Sprintf("wrote %s", a.UnitPath)})
	return nil
}

func (a *ConfigureInitServiceAction) TryRevert(ctx context.Context, host Host) error {
	if a.skip {
		a.markReverted()
		return nil
	}
	if err := host.Remove(a.UnitPath); err != nil {
		if _, statErr := host.Stat(a.UnitPath); statErr != nil {
			a.markReverted()
			return nil
		}
		return NewTaggedError(TagRevertFailed, a.Synopsis(), err)
	}
	a.markReverted()
	return nil
}

func (a *ConfigureInitServiceAction) MarshalParams() map[string]any {
	return map[string]any{
		"supervisor": a.Supervisor, "unit_path": a.UnitPath,
		"unit_content": a.UnitContent, "skip": a.skip,
	}
}

func (a *ConfigureInitServiceAction) UnmarshalParams(params map[string]any) error {
	a.Supervisor, _ = params["supervisor"].(string)
	a.UnitPath, _ = params["unit_path"].(string)
	a.UnitContent, _ = params["unit_content"].(string)
	a.skip, _ = params["skip"].(bool)
	return nil
}

// StartDaemonAction separately tracks "started now" and "enabled at boot"
// so revert precisely reverses whichever of the two was actually planned.
type StartDaemonAction struct {
	Base

	ServiceName string
	Enable      bool
	Start       bool

	didEnable bool
	didStart  bool
}

func (a *StartDaemonAction) Kind() string              { return "start-daemon" }
func (a *StartDaemonAction) Reversibility() Reversibility { return Lossless }
func (a *StartDaemonAction) Children() []Action         { return nil }

func (a *StartDaemonAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("start-daemon %s", a.ServiceName))
	var descriptions []string
	if a.Enable {
		descriptions = append(descriptions, fmt.Sprintf("enable %s at boot", a.ServiceName))
	}
	if a.Start {
		descriptions = append(descriptions, fmt.Sprintf("start %s now", a.ServiceName))
	}
	if len(descriptions) == 0 {
		descriptions = []string{fmt.Sprintf("%s: neither enable nor start requested, nothing to do", a.ServiceName)}
	}
	a.markPlanned(descriptions)
	return nil
}

func (a *StartDaemonAction) TryExecute(ctx context.Context, host Host) error {
	var executed []string
	if a.Enable {
		if err := host.ServiceEnable(ctx, a.ServiceName); err != nil {
			return NewTaggedError(TagActionFailed, a.Synopsis(), err)
		}
		a.didEnable = true
		executed = append(executed, fmt.Sprintf("enabled %s", a.ServiceName))
	}
	if a.Start {
		if err := host.ServiceStart(ctx, a.ServiceName); err != nil {
			return NewTaggedError(TagActionFailed, a.Synopsis(), err)
		}
		a.didStart = true
		executed = append(executed, fmt.Sprintf("started %s", a.ServiceName))
	}
	a.markCompleted(executed)
	return nil
}

func (a *StartDaemonAction) TryRevert(ctx context.Context, host Host) error {
	var failures []error
	if a.didStart {
		if err := host.ServiceStop(ctx, a.ServiceName); err != nil {
			failures = append(failures, err)
		}
	}
	if a.didEnable {
		if err := host.ServiceDisable(ctx, a.ServiceName); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return NewTaggedError(TagRevertFailed, a.Synopsis(), fmt.Errorf("%v", failures))
	}
	a.markReverted()
	return nil
}

func (a *StartDaemonAction) MarshalParams() map[string]any {
	return map[string]any{
		"service_name": a.ServiceName, "enable": a.Enable, "start": a.Start,
		"did_enable": a.didEnable, "did_start": a.didStart,
	}
}

func (a *StartDaemonAction) UnmarshalParams(params map[string]any) error {
	a.ServiceName, _ = params["service_name"].(string)
	a.Enable, _ = params["enable"].(bool)
	a.Start, _ = params["start"].(bool)
	a.didEnable, _ = params["did_enable"].(bool)
	a.didStart, _ = params["did_start"].(bool)
	return nil
}

// EnableSocketAction enables (and optionally starts) a socket-activated
// unit, mirroring StartDaemonAction's enable/start split.
type EnableSocketAction struct {
	Base

	SocketName string
	Start      bool

	didEnable bool
	didStart  bool
}

func (a *EnableSocketAction) Kind() string              { return "enable-socket" }
func (a *EnableSocketAction) Reversibility() Reversibility { return Lossless }
func (a *EnableSocketAction) Children() []Action         { return nil }

func (a *EnableSocketAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("enable-socket %s", a.SocketName))
	descriptions := []string{fmt.Sprintf("enable socket %s", a.SocketName)}
	if a.Start {
		descriptions = append(descriptions, fmt.Sprintf("start socket %s now", a.SocketName))
	}
	a.markPlanned(descriptions)
	return nil
}

func (a *EnableSocketAction) TryExecute(ctx context.Context, host Host) error {
	if err := host.ServiceEnable(ctx, a.SocketName); err != nil {
		return NewTaggedError(TagActionFailed, a.Synopsis(), err)
	}
	a.didEnable = true
	executed := []string{fmt.Sprintf("enabled socket %s", a.SocketName)}
	if a.Start {
		if err := host.ServiceStart(ctx, a.SocketName); err != nil {
			return NewTaggedError(TagActionFailed, a.Synopsis(), err)
		}
		a.didStart = true
		executed = append(executed, fmt.Sprintf("started socket %s", a.SocketName))
	}
	a.markCompleted(executed)
	return nil
}

func (a *EnableSocketAction) TryRevert(ctx context.Context, host Host) error {
	var failures []error
	if a.didStart {
		if err := host.ServiceStop(ctx, a.SocketName); err != nil {
			failures = append(failures, err)
		}
	}
	if a.didEnable {
		if err := host.ServiceDisable(ctx, a.SocketName); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return NewTaggedError(TagRevertFailed, a.Synopsis(), fmt.Errorf("%v", failures))
	}
	a.markReverted()
	return nil
}

func (a *EnableSocketAction) MarshalParams() map[string]any {
	return map[string]any{
		"socket_name": a.SocketName, "start": a.Start,
		"did_enable": a.didEnable, "did_start": a.didStart,
	}
}

func (a *EnableSocketAction) UnmarshalParams(params map[string]any) error {
	a.SocketName, _ = params["socket_name"].(string)
	a.Start, _ = params["start"].(bool)
	a.didEnable, _ = params["did_enable"].(bool)
	a.didStart, _ = params["did_start"].(bool)
	return nil
}
