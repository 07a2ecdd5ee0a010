// Implements routines for manipulating vehicle objects.
package vehicle

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"dronectl/pkg/cargo"
)

const (
	maxSerialNumberCharacters = 100
	maxBatteryLevel           = 100
	maxPayloadLimit           = 10000 // grams
	MaxAltitude               = 120.0
	//allowed models
	ModelQuadcopter = "Quadcopter"
	ModelHexacopter = "Hexacopter"
	ModelFixedWing  = "FixedWing"
	ModelVTOL       = "VTOL"
	//allowed states
	StateDisarmed  = "DISARMED"
	StateArmed     = "ARMED"
	StateTakingOff = "TAKING_OFF"
	StateAirborne  = "AIRBORNE"
	StateLanding   = "LANDING"
	StateReturning = "RETURNING"

	MinBatteryLevelForArming = 25

	altitudeTolerance = 0.5
	groundLevel       = 0.05
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrLowBattery        = errors.New("battery level too low")
	ErrInvalidAltitude   = errors.New("invalid altitude")
	ErrOverweight        = errors.New("payload limit exceeded")
)

type (
	//define what is a vehicle within the system
	Vehicle struct {
		serialNumber   string  // (100 characters max);
		model          string  // (Quadcopter, Hexacopter, FixedWing, VTOL);
		batteryLevel   float64 // (percentage);
		state          string  // (DISARMED, ARMED, TAKING_OFF, AIRBORNE, RETURNING, LANDING).
		altitude       float64 // metres above home
		targetAltitude float64
		latitude       float64
		longitude      float64
		payloadLimit   uint16 // grams (10000 max);
		parcels        []cargo.Parcel
		sync.Mutex
	}

	//define a data transfer object for a vehicle
	VehicleDTO struct {
		SerialNumber   string            `json:"serial_number"`
		Model          string            `json:"model,omitempty"`
		BatteryLevel   uint8             `json:"battery_level,omitempty"`
		State          string            `json:"state,omitempty"`
		Altitude       float64           `json:"altitude"`
		TargetAltitude float64           `json:"target_altitude,omitempty"`
		Latitude       float64           `json:"latitude"`
		Longitude      float64           `json:"longitude"`
		PayloadLimit   uint16            `json:"payload_limit,omitempty"`
		Parcels        []cargo.ParcelDTO `json:"parcels,omitempty"`
	}
)

func NewVehicle(dto VehicleDTO) (*Vehicle, error) {

	if !validSerialNumber(dto.SerialNumber) {
		return nil, errors.New(dto.SerialNumber + " is not a valid serial number")
	}

	if !validModel(dto.Model) {
		return nil, errors.New(dto.Model + " is not a valid model")
	}

	if !validBatteryLevel(dto.BatteryLevel) {
		return nil, fmt.Errorf("%d is not a valid battery level", dto.BatteryLevel)
	}

	if dto.State == "" {
		dto.State = StateDisarmed
	}

	if !validState(dto.State) {
		return nil, errors.New(dto.State + " is not a valid state")
	}

	if !validCoordinates(dto.Latitude, dto.Longitude) {
		return nil, fmt.Errorf("%f,%f are not valid coordinates", dto.Latitude, dto.Longitude)
	}

	if dto.Altitude < 0 || dto.Altitude > MaxAltitude {
		return nil, errors.Wrapf(ErrInvalidAltitude, "%.1f", dto.Altitude)
	}

	if dto.PayloadLimit > maxPayloadLimit {
		return nil, fmt.Errorf("%d g is not a valid payload limit", dto.PayloadLimit)
	}

	vehicle := &Vehicle{
		serialNumber:   dto.SerialNumber,
		model:          dto.Model,
		batteryLevel:   float64(dto.BatteryLevel),
		state:          dto.State,
		altitude:       dto.Altitude,
		targetAltitude: dto.TargetAltitude,
		latitude:       dto.Latitude,
		longitude:      dto.Longitude,
		payloadLimit:   dto.PayloadLimit,
	}

	for i, v := range dto.Parcels {
		parcel, err := cargo.NewParcel(v)
		if err != nil {
			return nil, errors.Wrapf(err, "successfully loaded parcels: %d of %d", i, len(dto.Parcels))
		}
		if !vehicle.isAcceptableLoad(*parcel) {
			return nil, errors.Wrapf(ErrOverweight, "successfully loaded parcels: %d of %d", i, len(dto.Parcels))
		}
		vehicle.parcels = append(vehicle.parcels, *parcel)
	}

	return vehicle, nil
}

func (v *Vehicle) Arm() error {

	v.Lock()
	defer v.Unlock()

	if v.state != StateDisarmed {
		return errors.Wrapf(ErrInvalidTransition, "cannot arm while %s", v.state)
	}

	if v.batteryLevel < MinBatteryLevelForArming {
		return errors.Wrapf(ErrLowBattery, "vehicle should not be %s when the battery level is below %d %%", StateArmed, MinBatteryLevelForArming)
	}

	v.state = StateArmed
	return nil
}

func (v *Vehicle) Takeoff(altitude float64) error {

	v.Lock()
	defer v.Unlock()

	if !ValidTakeoffAltitude(altitude) {
		return errors.Wrapf(ErrInvalidAltitude, "%.1f m must be above 0 and at most %.0f m", altitude, MaxAltitude)
	}

	if v.state != StateArmed {
		return errors.Wrapf(ErrInvalidTransition, "cannot take off while %s", v.state)
	}

	v.state = StateTakingOff
	v.targetAltitude = altitude
	return nil
}

func (v *Vehicle) Land() error {

	v.Lock()
	defer v.Unlock()

	switch v.state {
	case StateTakingOff, StateAirborne, StateReturning:
		v.state = StateLanding
		v.targetAltitude = 0
	case StateLanding:
	case StateArmed:
		v.state = StateDisarmed
	default:
		return errors.Wrapf(ErrInvalidTransition, "cannot land while %s", v.state)
	}

	return nil
}

// ReturnHome switches a flying vehicle to the return leg. The target
// altitude is kept.
func (v *Vehicle) ReturnHome() error {

	v.Lock()
	defer v.Unlock()

	switch v.state {
	case StateTakingOff, StateAirborne:
		v.state = StateReturning
	case StateReturning:
	default:
		return errors.Wrapf(ErrInvalidTransition, "cannot return home while %s", v.state)
	}

	return nil
}

// HoldAltitude stops a climb where it is and keeps the vehicle there.
func (v *Vehicle) HoldAltitude() error {

	v.Lock()
	defer v.Unlock()

	switch v.state {
	case StateTakingOff, StateAirborne:
		v.state = StateAirborne
		v.targetAltitude = v.altitude
	default:
		return errors.Wrapf(ErrInvalidTransition, "cannot hold altitude while %s", v.state)
	}

	return nil
}

// UpdatePosition records a measured horizontal position.
func (v *Vehicle) UpdatePosition(latitude, longitude float64) error {

	if !validCoordinates(latitude, longitude) {
		return fmt.Errorf("%f,%f are not valid coordinates", latitude, longitude)
	}

	v.Lock()
	defer v.Unlock()

	v.latitude = latitude
	v.longitude = longitude
	return nil
}

// UpdateAltitude records a measured altitude and completes takeoff or landing
// once the vehicle reaches its target.
func (v *Vehicle) UpdateAltitude(altitude float64) {

	v.Lock()
	defer v.Unlock()

	if altitude < 0 {
		altitude = 0
	}
	v.altitude = altitude

	switch v.state {
	case StateTakingOff:
		if altitude >= v.targetAltitude-altitudeTolerance {
			v.state = StateAirborne
		}
	case StateLanding:
		if altitude <= groundLevel {
			v.altitude = 0
			v.state = StateDisarmed
		}
	}
}

func (v *Vehicle) CurrentWeight() uint {
	v.Lock()
	defer v.Unlock()
	return v.currentWeight()
}

func (v *Vehicle) currentWeight() uint {

	currentWeight := uint(0)

	for _, p := range v.parcels {
		currentWeight += p.GetWeight()
	}

	return currentWeight
}

func (v *Vehicle) isAcceptableLoad(parcel cargo.Parcel) bool {
	return parcel.GetWeight()+v.currentWeight() <= uint(v.payloadLimit)
}

// Load puts a parcel on board. Loading happens on the ground with the
// motors disarmed.
func (v *Vehicle) Load(parcel cargo.Parcel) error {

	v.Lock()
	defer v.Unlock()

	if v.state != StateDisarmed {
		return errors.Wrapf(ErrInvalidTransition, "cannot load cargo while %s", v.state)
	}

	if v.batteryLevel < MinBatteryLevelForArming {
		return errors.Wrapf(ErrLowBattery, "vehicle should not be loaded when the battery level is below %d %%", MinBatteryLevelForArming)
	}

	if !v.isAcceptableLoad(parcel) {
		return errors.Wrapf(ErrOverweight, "%d g on board, %d g more would exceed %d g",
			v.currentWeight(), parcel.GetWeight(), v.payloadLimit)
	}

	v.parcels = append(v.parcels, parcel)
	return nil
}

// LoadSet loads parcels in order and stops at the first one refused.
func (v *Vehicle) LoadSet(parcels []cargo.ParcelDTO) error {

	successfullyLoaded := 0
	for _, dto := range parcels {
		parcel, err := cargo.NewParcel(dto)
		if err != nil {
			return errors.Wrapf(err, "successfully loaded parcels: %d of %d", successfullyLoaded, len(parcels))
		}
		if err := v.Load(*parcel); err != nil {
			return errors.Wrapf(err, "successfully loaded parcels: %d of %d", successfullyLoaded, len(parcels))
		}
		successfullyLoaded++
	}

	return nil
}

// Unload takes every parcel off the vehicle and returns them.
func (v *Vehicle) Unload() ([]cargo.ParcelDTO, error) {

	v.Lock()
	defer v.Unlock()

	if v.state != StateDisarmed {
		return nil, errors.Wrapf(ErrInvalidTransition, "cannot unload cargo while %s", v.state)
	}

	unloaded := make([]cargo.ParcelDTO, 0, len(v.parcels))
	for _, p := range v.parcels {
		unloaded = append(unloaded, p.GetDTO())
	}
	v.parcels = nil

	return unloaded, nil
}

// Drain lowers the battery level by the given percentage points.
func (v *Vehicle) Drain(points float64) {

	v.Lock()
	defer v.Unlock()

	v.batteryLevel -= points
	if v.batteryLevel < 0 {
		v.batteryLevel = 0
	}
}

func (v *Vehicle) IsFlying() bool {
	v.Lock()
	defer v.Unlock()
	return v.state == StateTakingOff || v.state == StateAirborne || v.state == StateReturning
}

func (v *Vehicle) GetDTO() VehicleDTO {

	v.Lock()
	defer v.Unlock()

	dto := VehicleDTO{
		SerialNumber:   v.serialNumber,
		Model:          v.model,
		BatteryLevel:   uint8(v.batteryLevel + 0.5),
		State:          v.state,
		Altitude:       v.altitude,
		TargetAltitude: v.targetAltitude,
		Latitude:       v.latitude,
		Longitude:      v.longitude,
		PayloadLimit:   v.payloadLimit,
	}

	for _, p := range v.parcels {
		dto.Parcels = append(dto.Parcels, p.GetDTO())
	}

	return dto
}

func (v *Vehicle) GetSerialNumber() string {
	return v.serialNumber
}

func (v *Vehicle) GetModel() string {
	return v.model
}

func (v *Vehicle) GetState() string {
	v.Lock()
	defer v.Unlock()
	return v.state
}

func (v *Vehicle) GetBatteryLevel() float64 {
	v.Lock()
	defer v.Unlock()
	return v.batteryLevel
}

func (v *Vehicle) GetAltitude() float64 {
	v.Lock()
	defer v.Unlock()
	return v.altitude
}

func (v *Vehicle) GetTargetAltitude() float64 {
	v.Lock()
	defer v.Unlock()
	return v.targetAltitude
}

func (v *Vehicle) GetPayloadLimit() uint16 {
	return v.payloadLimit
}

func (v *Vehicle) GetPosition() (latitude, longitude float64) {
	v.Lock()
	defer v.Unlock()
	return v.latitude, v.longitude
}

func ValidTakeoffAltitude(altitude float64) bool {
	return altitude > 0 && altitude <= MaxAltitude
}

func validSerialNumber(serialNumber string) bool {
	return len(serialNumber) > 0 && len(serialNumber) <= maxSerialNumberCharacters
}

func validBatteryLevel(batteryLevel uint8) bool {
	return batteryLevel > 0 && batteryLevel <= maxBatteryLevel
}

func validCoordinates(latitude, longitude float64) bool {
	return latitude >= -90 && latitude <= 90 && longitude >= -180 && longitude <= 180
}

func validModel(model string) bool {

	switch model {
	case ModelQuadcopter, ModelHexacopter, ModelFixedWing, ModelVTOL:
		return true
	}

	return false
}

func validState(state string) bool {

	switch state {
	case StateDisarmed, StateArmed, StateTakingOff, StateAirborne, StateReturning, StateLanding:
		return true
	}

	return false
}
