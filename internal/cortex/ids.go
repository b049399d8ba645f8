package cortex

// Request identifiers. Each operation kind owns one stable integer; the high
// nibble names the category.
const (
	IDGetUserLogin       = 0x10
	IDRequestAccess      = 0x11
	IDHasAccessRight     = 0x12
	IDAuthorize          = 0x13
	IDGenerateNewToken   = 0x14
	IDGetUserInformation = 0x15
	IDGetLicenseInfo     = 0x16

	IDQueryHeadsets           = 0x20
	IDControlDevice           = 0x21
	IDUpdateHeadset           = 0x22
	IDUpdateHeadsetCustomInfo = 0x23

	IDCreateSession = 0x30
	IDUpdateSession = 0x31
	IDQuerySessions = 0x32

	IDSubscribe   = 0x40
	IDUnsubscribe = 0x41

	IDCreateRecord  = 0x50
	IDStopRecord    = 0x51
	IDUpdateRecord  = 0x52
	IDDeleteRecord  = 0x53
	IDQueryRecords  = 0x54
	IDGetRecordInfo = 0x55
	IDConfigOptOut  = 0x56

	IDInjectMarker = 0x60
	IDUpdateMarker = 0x61

	IDCreateSubject            = 0x70
	IDUpdateSubject            = 0x71
	IDDeleteSubjects           = 0x72
	IDQuerySubjects            = 0x73
	IDGetDemographicAttributes = 0x74

	IDQueryProfile      = 0x80
	IDGetCurrentProfile = 0x81
	IDSetupProfile      = 0x82
	IDLoadGuestProfile  = 0x83
	IDGetDetectionInfo  = 0x84
	IDTraining          = 0x85
)
