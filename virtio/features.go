package virtio

// Transport feature bits.
const (
	FNotifyOnEmpty      = 1 << 24
	FAnyLayout          = 1 << 27 // device handles any descriptor layout
	RingFIndirectDesc   = 1 << 28
	RingFEventIdx       = 1 << 29
	FVersion1           = 1 << 32
	FAccessPlatform     = 1 << 33
	FRingPacked         = 1 << 34
	FOrderPlatform      = 1 << 36
	FNotificationData   = 1 << 38
	FRingReset          = 1 << 40
	FBadFeature         = 1 << 30 // never accepted by a guest
)

// Net device feature bits.
const (
	NetFCsum          = 1 << 0 // host handles packets with partial csum
	NetFGuestCsum     = 1 << 1
	NetFCtrlGuestOffl = 1 << 2
	NetFMTU           = 1 << 3 // initial MTU advice
	NetFMAC           = 1 << 5 // host has given MAC address
	NetFGSO           = 1 << 6
	NetFGuestTSO4     = 1 << 7
	NetFGuestTSO6     = 1 << 8
	NetFGuestECN      = 1 << 9
	NetFGuestUFO      = 1 << 10
	NetFHostTSO4      = 1 << 11
	NetFHostTSO6      = 1 << 12
	NetFHostECN       = 1 << 13
	NetFHostUFO       = 1 << 14
	NetFMrgRxBuf      = 1 << 15 // driver can merge receive buffers
	NetFStatus        = 1 << 16 // config status field is available
	NetFCtrlVQ        = 1 << 17
	NetFCtrlRx        = 1 << 18
	NetFCtrlVLAN      = 1 << 19
	NetFGuestAnnounce = 1 << 21
	NetFMQ            = 1 << 22
	NetFCtrlMACAddr   = 1 << 23
	NetFVQNotfCoal    = 1 << 52
	NetFNotfCoal      = 1 << 53
	NetFGuestUSO4     = 1 << 54
	NetFGuestUSO6     = 1 << 55
	NetFHostUSO       = 1 << 56
	NetFHashReport    = 1 << 57
	NetFGuestHdrLen   = 1 << 59
	NetFRSS           = 1 << 60
	NetFRSCExt        = 1 << 61
	NetFStandby       = 1 << 62
	NetFSpeedDuplex   = 1 << 63
)

// Net config status bits.
const (
	NetSLinkUp   = 1
	NetSAnnounce = 2
)
