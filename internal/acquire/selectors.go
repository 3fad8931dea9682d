package acquire

// Selectors locate the portal elements the engine waits on. All are XPath.
type Selectors struct {
	Username      string
	Password      string
	AccountMarker string
	LoginError    string
	PortContainer string
	PortButton    string
	RequestButton string
	PortInput     string
	PortValue     string
}

// Button labels of the port management control.
const (
	LabelDelete  = "Delete Port"
	LabelRequest = "Request Matching Port"
)

// WindscribeSelectors matches the Windscribe account pages.
func WindscribeSelectors() Selectors {
	return Selectors{
		Username:      `//*[@id="username"]`,
		Password:      `//*[@id="pass"]`,
		AccountMarker: `//*[@id="menu-account"]`,
		LoginError:    `//*[@id="loginform"]/div/div[1]`,
		PortContainer: `//*[@id="request-port-cont"]`,
		PortButton:    `//*[@id="request-port-cont"]/button`,
		RequestButton: `//button[normalize-space()='` + LabelRequest + `']`,
		PortInput:     `//*[@id="epf-input"]`,
		PortValue:     `//div[@id="epf-port-info"]//span[1]`,
	}
}
