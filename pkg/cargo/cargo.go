// Package cargo describes the parcels a courier vehicle carries.
package cargo

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

const maxParcelWeight = 10000 // grams

var (
	validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	validCode = regexp.MustCompile(`^[A-Z0-9_]+$`)
)

type (
	//define what is a parcel within the system
	Parcel struct {
		name      string // (allowed only letters, numbers, '-', '_');
		weight    uint   // grams
		code      string // (allowed only upper case letters, underscore and numbers);
		recipient string
	}

	//define a data transfer object for a parcel
	ParcelDTO struct {
		Name      string `json:"name"`
		Weight    uint   `json:"weight"`
		Code      string `json:"code"`
		Recipient string `json:"recipient,omitempty"`
	}
)

func NewParcel(dto ParcelDTO) (*Parcel, error) {

	if !isValidName(dto.Name) {
		return nil, errors.New(dto.Name + " is not a valid name")
	}

	if !isValidCode(dto.Code) {
		return nil, errors.New(dto.Code + " is not a valid code")
	}

	if dto.Weight == 0 || dto.Weight > maxParcelWeight {
		return nil, fmt.Errorf("%d g is not a valid parcel weight", dto.Weight)
	}

	return &Parcel{
		name:      dto.Name,
		weight:    dto.Weight,
		code:      dto.Code,
		recipient: dto.Recipient,
	}, nil
}

func (p *Parcel) GetWeight() uint {
	return p.weight
}

func (p *Parcel) GetCode() string {
	return p.code
}

func (p *Parcel) GetDTO() ParcelDTO {
	return ParcelDTO{
		Name:      p.name,
		Weight:    p.weight,
		Code:      p.code,
		Recipient: p.recipient,
	}
}

func isValidName(name string) bool {
	return validName.MatchString(name)
}

func isValidCode(code string) bool {
	return validCode.MatchString(code)
}
