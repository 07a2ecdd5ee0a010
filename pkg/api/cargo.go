package api

import (
	"encoding/json"
	"net/http"

	"dronectl/pkg/cargo"
	"dronectl/pkg/vehicle"
)

// CargoHold is the part of a vehicle that carries parcels.
type CargoHold interface {
	Load(parcel cargo.Parcel) error
	Unload() ([]cargo.ParcelDTO, error)
	CurrentWeight() uint
	GetDTO() vehicle.VehicleDTO
}

func (env *Environment) ListCargo(w http.ResponseWriter, r *http.Request) {

	if env.Cargo == nil {
		writeNoCargoHold(w)
		return
	}

	dto := env.Cargo.GetDTO()
	parcels := dto.Parcels
	if parcels == nil {
		parcels = []cargo.ParcelDTO{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"parcels":       parcels,
		"weight":        env.Cargo.CurrentWeight(),
		"payload_limit": dto.PayloadLimit,
	})
}

func (env *Environment) LoadCargo(w http.ResponseWriter, r *http.Request) {

	if env.Cargo == nil {
		writeNoCargoHold(w)
		return
	}

	dto := cargo.ParcelDTO{}
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		env.Log.Infow("could not decode parcel json object", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid parcel: " + err.Error()})
		return
	}

	parcel, err := cargo.NewParcel(dto)
	if err != nil {
		env.Log.Infow("could not obtain parcel object from dto", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	params := map[string]interface{}{"code": dto.Code, "weight": dto.Weight}
	err = env.Cargo.Load(*parcel)
	env.record(r.Context(), r, "load", params, err)
	if err != nil {
		env.writeCommandError(w, "load", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "loaded",
		"weight":        env.Cargo.CurrentWeight(),
		"payload_limit": env.Cargo.GetDTO().PayloadLimit,
	})
}

func (env *Environment) UnloadCargo(w http.ResponseWriter, r *http.Request) {

	if env.Cargo == nil {
		writeNoCargoHold(w)
		return
	}

	parcels, err := env.Cargo.Unload()
	env.record(r.Context(), r, "unload", nil, err)
	if err != nil {
		env.writeCommandError(w, "unload", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "unloaded", "parcels": parcels})
}

func writeNoCargoHold(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "vehicle has no cargo hold"})
}
