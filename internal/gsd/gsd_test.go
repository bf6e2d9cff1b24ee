package gsd

import "testing"

func validDescriptor() *Descriptor {
	return &Descriptor{
		IdentNumber:        0xBEEF,
		SupportedBauds:     []int{9600, 187500},
		MaxUserPrmDataLen:  4,
		DefaultUserPrmData: []byte{1, 2},
		Modules:            []Module{{CfgByte: 0x10, InputSize: 1, OutputSize: 1, Name: "io"}},
	}
}

func Test_validateAcceptsWellFormedDescriptor(t *testing.T) {
	if err := Validate(validDescriptor()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func Test_validateRejectsMissingIdentNumber(t *testing.T) {
	d := validDescriptor()
	d.IdentNumber = 0
	if err := Validate(d); err == nil {
		t.Fatal("expected error for missing identNumber")
	}
}

func Test_validateRejectsOversizedUserPrmData(t *testing.T) {
	d := validDescriptor()
	d.MaxUserPrmDataLen = 238
	if err := Validate(d); err == nil {
		t.Fatal("expected error for maxUserPrmDataLen over 237")
	}
}

func Test_validateRejectsDefaultPrmDataLongerThanMax(t *testing.T) {
	d := validDescriptor()
	d.MaxUserPrmDataLen = 1
	d.DefaultUserPrmData = []byte{1, 2, 3}
	if err := Validate(d); err == nil {
		t.Fatal("expected error for default UserPrmData exceeding declared max")
	}
}

func Test_validateRejectsNoSupportedBauds(t *testing.T) {
	d := validDescriptor()
	d.SupportedBauds = nil
	if err := Validate(d); err == nil {
		t.Fatal("expected error for no supported baud rates")
	}
}

func Test_validateRejectsNegativeModuleIOSize(t *testing.T) {
	d := validDescriptor()
	d.Modules = []Module{{Name: "bad", InputSize: -1}}
	if err := Validate(d); err == nil {
		t.Fatal("expected error for negative module IO size")
	}
}
