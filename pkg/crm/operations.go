package crm

// Operation names.
const (
	OpStart       = "start"
	OpStop        = "stop"
	OpStatus      = "status"
	OpMonitor     = "monitor"
	OpMetaData    = "meta-data"
	OpValidateAll = "validate-all"
	OpPromote     = "promote"
	OpDemote      = "demote"
)

// Operation parameter names.
const (
	ParamDescription = "description"
	ParamInterval    = "interval"
	ParamTimeout     = "timeout"
	ParamStartDelay  = "start-delay"
	ParamDisabled    = "disabled"
	ParamRole        = "role"
	ParamPrereq      = "prereq"
	ParamOnFail      = "on-fail"
)

// Operations lists the operations in display order.
var Operations = []string{OpStart, OpPromote, OpDemote, OpStop, OpStatus, OpMonitor, OpMetaData, OpValidateAll}

// IgnoreDefault lists operations that get no default values.
var IgnoreDefault = map[string]bool{OpStatus: true, OpMetaData: true, OpValidateAll: true}

var defaultOpParams = []string{ParamTimeout, ParamInterval}

// OperationDefaults holds the parameters shown per operation. It depends on
// whether the DC runs pacemaker: only then does monitor accept start-delay.
type OperationDefaults struct {
	params      map[string][]string
	notAdvanced map[[2]string]bool
}

// NewOperationDefaults builds the table for a DC with or without pacemaker.
func NewOperationDefaults(pacemaker bool) *OperationDefaults {
	d := &OperationDefaults{
		params: map[string][]string{},
		notAdvanced: map[[2]string]bool{
			{OpStart, ParamTimeout}:    true,
			{OpStop, ParamTimeout}:     true,
			{OpMonitor, ParamTimeout}:  true,
			{OpMonitor, ParamInterval}: true,
		},
	}
	for _, op := range []string{OpStart, OpStop, OpMetaData, OpValidateAll, OpStatus, OpPromote, OpDemote} {
		d.params[op] = defaultOpParams
	}
	if pacemaker {
		d.params[OpMonitor] = []string{ParamTimeout, ParamInterval, ParamStartDelay}
	} else {
		d.params[OpMonitor] = defaultOpParams
	}
	return d
}

// OperationParams returns the parameters of op, timeout and interval for
// unknown operations.
func (d *OperationDefaults) OperationParams(op string) []string {
	if p, ok := d.params[op]; ok {
		return append([]string(nil), p...)
	}
	return append([]string(nil), defaultOpParams...)
}

// IsOperationAdvanced reports whether param of op is hidden outside the
// advanced mode.
func (d *OperationDefaults) IsOperationAdvanced(op, param string) bool {
	return !d.notAdvanced[[2]string{op, param}]
}
