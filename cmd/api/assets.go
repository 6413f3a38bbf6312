package main

import "fmt"

// gatewayLogoURL builds the logo URL the chooser template shows per
// gateway. Delivered from Cloudinary when configured, otherwise from the
// service's static path.
func (app *application) gatewayLogoURL(gateway string) string {
	publicID := fmt.Sprintf("%s/%s-logo", app.config.pluginName, gateway)

	if app.cld != nil {
		if img, err := app.cld.Image(publicID); err == nil {
			if url, err := img.String(); err == nil && url != "" {
				return url
			}
		}
	}

	return fmt.Sprintf("%s/public/images/%s-logo.png", app.config.apiURL, gateway)
}
