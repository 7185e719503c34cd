package messages

// Type identifies the kind of a protocol envelope.
//
// The set of types is closed: the codec refuses to encode an envelope whose
// type it does not know, and Decode reports unknown inbound types with
// ErrUnknownMessageType so the engine can drop them without escalating.
type Type string

// Plugin lifecycle message types.
const (
	TypePluginRegisterRequest   Type = "pluginRegisterRequest"
	TypePluginRegisterResponse  Type = "pluginRegisterResponse"
	TypePluginUnloadRequest     Type = "pluginUnloadRequest"
	TypePluginUnloadResponse    Type = "pluginUnloadResponse"
	TypePluginErrorNotification Type = "pluginErrorNotification"
)

// Adapter message types.
const (
	TypeAdapterAddedNotification          Type = "adapterAddedNotification"
	TypeAdapterUnloadRequest              Type = "adapterUnloadRequest"
	TypeAdapterUnloadResponse             Type = "adapterUnloadResponse"
	TypeAdapterRemoveDeviceRequest        Type = "adapterRemoveDeviceRequest"
	TypeAdapterRemoveDeviceResponse       Type = "adapterRemoveDeviceResponse"
	TypeAdapterCancelRemoveDeviceCommand  Type = "adapterCancelRemoveDeviceCommand"
	TypeAdapterStartPairingCommand        Type = "adapterStartPairingCommand"
	TypeAdapterCancelPairingCommand       Type = "adapterCancelPairingCommand"
	TypeAdapterPairingPromptNotification  Type = "adapterPairingPromptNotification"
	TypeAdapterUnpairingPromptNotification Type = "adapterUnpairingPromptNotification"
)

// Device message types.
const (
	TypeDeviceAddedNotification           Type = "deviceAddedNotification"
	TypeDeviceRemovedNotification         Type = "deviceRemovedNotification"
	TypeDevicePropertyChangedNotification Type = "devicePropertyChangedNotification"
	TypeDeviceSetPropertyCommand          Type = "deviceSetPropertyCommand"
	TypeDeviceRequestActionRequest        Type = "deviceRequestActionRequest"
	TypeDeviceRequestActionResponse       Type = "deviceRequestActionResponse"
	TypeDeviceActionStatusNotification    Type = "deviceActionStatusNotification"
	TypeDeviceEventNotification           Type = "deviceEventNotification"
	TypeDeviceConnectedStateNotification  Type = "deviceConnectedStateNotification"
)

// TypeGatewayResponse is the generic response wrapper the gateway sends for
// correlated plugin requests. It is routed to the correlation table, never
// to the entity model.
const TypeGatewayResponse Type = "gatewayResponse"

// IsResponse reports whether envelopes of this type are routed to the
// correlation table by their carried message id.
func (t Type) IsResponse() bool {
	switch t {
	case TypePluginRegisterResponse, TypeGatewayResponse:
		return true
	default:
		return false
	}
}

// Envelope is one discrete protocol message unit: a message type plus its
// kind-specific payload. Data always holds a pointer to one of the payload
// structs below.
type Envelope struct {
	MessageType Type
	Data        Payload
}

// Payload is implemented by every kind-specific payload struct.
type Payload interface {
	// validate checks that required fields are present after decoding.
	validate() error
}

// Correlated is implemented by payloads that carry a correlation id linking
// an outbound request to its eventual gateway response.
type Correlated interface {
	SetMessageID(id int64)
	CorrelationID() int64
}

// Correlation is embedded by payloads that participate in request/response
// correlation.
type Correlation struct {
	MessageID int64 `json:"messageId,omitempty"`
}

// SetMessageID records the correlation id on the payload.
func (c *Correlation) SetMessageID(id int64) { c.MessageID = id }

// CorrelationID returns the correlation id carried by the payload.
func (c *Correlation) CorrelationID() int64 { return c.MessageID }

// DeviceDescription is the wire form of a device announced to the gateway.
type DeviceDescription struct {
	ID          string                         `json:"id"`
	Title       string                         `json:"title"`
	Context     string                         `json:"@context,omitempty"`
	Types       []string                       `json:"@type,omitempty"`
	Description string                         `json:"description,omitempty"`
	Properties  map[string]PropertyDescription `json:"properties,omitempty"`
	Actions     map[string]ActionDescription   `json:"actions,omitempty"`
	Events      map[string]EventDescription    `json:"events,omitempty"`
}

// PropertyDescription is the wire form of a device property.
type PropertyDescription struct {
	Title    string   `json:"title,omitempty"`
	Type     string   `json:"type"`
	Unit     string   `json:"unit,omitempty"`
	Minimum  *float64 `json:"minimum,omitempty"`
	Maximum  *float64 `json:"maximum,omitempty"`
	Enum     []any    `json:"enum,omitempty"`
	ReadOnly bool     `json:"readOnly,omitempty"`
	Value    any      `json:"value,omitempty"`
}

// ActionDescription is the wire form of an action definition or instance.
type ActionDescription struct {
	Title         string         `json:"title,omitempty"`
	Description   string         `json:"description,omitempty"`
	Input         map[string]any `json:"input,omitempty"`
	ID            string         `json:"id,omitempty"`
	Status        string         `json:"status,omitempty"`
	TimeRequested string         `json:"timeRequested,omitempty"`
	TimeCompleted string         `json:"timeCompleted,omitempty"`
}

// EventDescription is the wire form of an event definition or instance.
type EventDescription struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Data        any    `json:"data,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// PluginRegisterRequest is the handshake sent after the transport opens.
type PluginRegisterRequest struct {
	Correlation
	PluginID string `json:"pluginId"`
}

func (p *PluginRegisterRequest) validate() error {
	return requireFields(map[string]bool{"pluginId": p.PluginID != ""})
}

// PluginRegisterResponse carries the gateway's handshake reply.
type PluginRegisterResponse struct {
	Correlation
	PluginID       string         `json:"pluginId"`
	GatewayVersion string         `json:"gatewayVersion"`
	UserProfile    map[string]any `json:"userProfile,omitempty"`
	Preferences    map[string]any `json:"preferences,omitempty"`
}

func (p *PluginRegisterResponse) validate() error {
	return requireFields(map[string]bool{
		"pluginId":       p.PluginID != "",
		"gatewayVersion": p.GatewayVersion != "",
	})
}

// PluginUnloadRequest asks the plugin to shut down.
type PluginUnloadRequest struct {
	PluginID string `json:"pluginId"`
}

func (p *PluginUnloadRequest) validate() error {
	return requireFields(map[string]bool{"pluginId": p.PluginID != ""})
}

// PluginUnloadResponse acknowledges a shutdown request.
type PluginUnloadResponse struct {
	PluginID string `json:"pluginId"`
}

func (p *PluginUnloadResponse) validate() error {
	return requireFields(map[string]bool{"pluginId": p.PluginID != ""})
}

// PluginErrorNotification reports a plugin-side failure to the gateway.
type PluginErrorNotification struct {
	PluginID string `json:"pluginId"`
	Message  string `json:"message"`
}

func (p *PluginErrorNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId": p.PluginID != "",
		"message":  p.Message != "",
	})
}

// AdapterAddedNotification registers an adapter with the gateway.
type AdapterAddedNotification struct {
	PluginID    string `json:"pluginId"`
	AdapterID   string `json:"adapterId"`
	Name        string `json:"name"`
	PackageName string `json:"packageName"`
}

func (p *AdapterAddedNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
	})
}

// AdapterUnloadRequest asks one adapter to shut down.
type AdapterUnloadRequest struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
}

func (p *AdapterUnloadRequest) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
	})
}

// AdapterUnloadResponse confirms adapter shutdown; also serves as the
// unregistration envelope sent while draining.
type AdapterUnloadResponse struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
}

func (p *AdapterUnloadResponse) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
	})
}

// AdapterRemoveDeviceRequest is a gateway-initiated unpair of one device.
type AdapterRemoveDeviceRequest struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
	DeviceID  string `json:"deviceId"`
}

func (p *AdapterRemoveDeviceRequest) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
		"deviceId":  p.DeviceID != "",
	})
}

// AdapterRemoveDeviceResponse confirms a device unpair.
type AdapterRemoveDeviceResponse struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
	DeviceID  string `json:"deviceId"`
}

func (p *AdapterRemoveDeviceResponse) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
		"deviceId":  p.DeviceID != "",
	})
}

// AdapterCancelRemoveDeviceCommand aborts an in-progress unpair.
type AdapterCancelRemoveDeviceCommand struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
	DeviceID  string `json:"deviceId"`
}

func (p *AdapterCancelRemoveDeviceCommand) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
		"deviceId":  p.DeviceID != "",
	})
}

// AdapterStartPairingCommand begins device discovery.
type AdapterStartPairingCommand struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`

	// Timeout is the pairing window in seconds.
	Timeout int `json:"timeout"`
}

func (p *AdapterStartPairingCommand) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
	})
}

// AdapterCancelPairingCommand aborts device discovery.
type AdapterCancelPairingCommand struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
}

func (p *AdapterCancelPairingCommand) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
	})
}

// AdapterPairingPromptNotification asks the gateway UI to show a pairing hint.
type AdapterPairingPromptNotification struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
	Prompt    string `json:"prompt"`
	URL       string `json:"url,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
}

func (p *AdapterPairingPromptNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
		"prompt":    p.Prompt != "",
	})
}

// AdapterUnpairingPromptNotification asks the gateway UI to show an
// unpairing hint.
type AdapterUnpairingPromptNotification struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
	Prompt    string `json:"prompt"`
	URL       string `json:"url,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
}

func (p *AdapterUnpairingPromptNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
		"prompt":    p.Prompt != "",
	})
}

// DeviceAddedNotification announces a newly discovered device.
type DeviceAddedNotification struct {
	PluginID  string            `json:"pluginId"`
	AdapterID string            `json:"adapterId"`
	Device    DeviceDescription `json:"device"`
}

func (p *DeviceAddedNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
		"device.id": p.Device.ID != "",
	})
}

// DeviceRemovedNotification reports adapter-initiated device removal.
type DeviceRemovedNotification struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
	DeviceID  string `json:"deviceId"`
}

func (p *DeviceRemovedNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
		"deviceId":  p.DeviceID != "",
	})
}

// DevicePropertyChangedNotification reports a property value to the gateway.
// It is correlated so the gateway's acknowledgment can mark the value durable.
type DevicePropertyChangedNotification struct {
	Correlation
	PluginID  string              `json:"pluginId"`
	AdapterID string              `json:"adapterId"`
	DeviceID  string              `json:"deviceId"`
	Property  PropertyDescription `json:"property"`

	// PropertyName names the property; descriptions carry only the value side.
	PropertyName string `json:"propertyName"`
}

func (p *DevicePropertyChangedNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId":     p.PluginID != "",
		"adapterId":    p.AdapterID != "",
		"deviceId":     p.DeviceID != "",
		"propertyName": p.PropertyName != "",
	})
}

// DeviceSetPropertyCommand is a gateway-initiated property write.
type DeviceSetPropertyCommand struct {
	PluginID      string `json:"pluginId"`
	AdapterID     string `json:"adapterId"`
	DeviceID      string `json:"deviceId"`
	PropertyName  string `json:"propertyName"`
	PropertyValue any    `json:"propertyValue"`
}

func (p *DeviceSetPropertyCommand) validate() error {
	return requireFields(map[string]bool{
		"pluginId":     p.PluginID != "",
		"adapterId":    p.AdapterID != "",
		"deviceId":     p.DeviceID != "",
		"propertyName": p.PropertyName != "",
	})
}

// DeviceRequestActionRequest asks the plugin to perform an action.
type DeviceRequestActionRequest struct {
	PluginID   string         `json:"pluginId"`
	AdapterID  string         `json:"adapterId"`
	DeviceID   string         `json:"deviceId"`
	ActionName string         `json:"actionName"`
	ActionID   string         `json:"actionId"`
	Input      map[string]any `json:"input,omitempty"`
}

func (p *DeviceRequestActionRequest) validate() error {
	return requireFields(map[string]bool{
		"pluginId":   p.PluginID != "",
		"adapterId":  p.AdapterID != "",
		"deviceId":   p.DeviceID != "",
		"actionName": p.ActionName != "",
		"actionId":   p.ActionID != "",
	})
}

// DeviceRequestActionResponse reports whether an action invocation was accepted.
type DeviceRequestActionResponse struct {
	PluginID   string `json:"pluginId"`
	AdapterID  string `json:"adapterId"`
	DeviceID   string `json:"deviceId"`
	ActionName string `json:"actionName"`
	ActionID   string `json:"actionId"`
	Success    bool   `json:"success"`
}

func (p *DeviceRequestActionResponse) validate() error {
	return requireFields(map[string]bool{
		"pluginId":   p.PluginID != "",
		"adapterId":  p.AdapterID != "",
		"deviceId":   p.DeviceID != "",
		"actionName": p.ActionName != "",
		"actionId":   p.ActionID != "",
	})
}

// DeviceActionStatusNotification reports an action state transition.
type DeviceActionStatusNotification struct {
	PluginID  string            `json:"pluginId"`
	AdapterID string            `json:"adapterId"`
	DeviceID  string            `json:"deviceId"`
	Action    ActionDescription `json:"action"`
}

func (p *DeviceActionStatusNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
		"deviceId":  p.DeviceID != "",
		"action.id": p.Action.ID != "",
	})
}

// DeviceEventNotification reports a one-shot device event.
type DeviceEventNotification struct {
	PluginID  string           `json:"pluginId"`
	AdapterID string           `json:"adapterId"`
	DeviceID  string           `json:"deviceId"`
	Event     EventDescription `json:"event"`
}

func (p *DeviceEventNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId":    p.PluginID != "",
		"adapterId":   p.AdapterID != "",
		"deviceId":    p.DeviceID != "",
		"event.title": p.Event.Title != "",
	})
}

// DeviceConnectedStateNotification reports device connectivity.
type DeviceConnectedStateNotification struct {
	PluginID  string `json:"pluginId"`
	AdapterID string `json:"adapterId"`
	DeviceID  string `json:"deviceId"`
	Connected bool   `json:"connected"`
}

func (p *DeviceConnectedStateNotification) validate() error {
	return requireFields(map[string]bool{
		"pluginId":  p.PluginID != "",
		"adapterId": p.AdapterID != "",
		"deviceId":  p.DeviceID != "",
	})
}

// GatewayResponse is the generic correlated response wrapper.
type GatewayResponse struct {
	Correlation
	PluginID string         `json:"pluginId"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Result   map[string]any `json:"result,omitempty"`
}

func (p *GatewayResponse) validate() error {
	if p.MessageID == 0 {
		return fieldError("messageId")
	}
	return requireFields(map[string]bool{"pluginId": p.PluginID != ""})
}
