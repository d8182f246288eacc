package main

// @title           Sercha Marks Control API
// @version         1.0
// @description     Control surface of the sercha-marks daemon. Keeps a local bookmark folder in sync with pull requests, issues and merge requests.

// @contact.name   Sercha OSS
// @contact.url    https://github.com/custodia-labs/sercha-marks/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8380
// @BasePath  /api/v1
// @schemes   http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Control token. Format: "Bearer {token}"

var version = "dev"

func main() {
	Execute()
}
