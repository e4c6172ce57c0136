package services

import "wordpress-plugin-generator/models"

var troubleshooting = map[models.ErrorKind][]string{
	models.ErrorKindConnection: {
		"Check that the site URL or FTP host is spelled correctly",
		"Make sure the server is online and reachable from this machine",
		"Check that the port is correct and not blocked by a firewall",
	},
	models.ErrorKindAuthentication: {
		"Check the API key shown in the Plugin Generator connector settings",
		"Re-enter the FTP/SFTP username and password",
		"Update the connection details and verify the connection again",
	},
	models.ErrorKindSecureConnectionRequired: {
		"Enable the secure (FTPS) option in the connection settings",
		"Or switch the protocol to SFTP if your host supports it",
	},
	models.ErrorKindFilesystemConstants: {
		"Open wp-config.php on the server",
		"Add the FS_CHMOD_DIR and FS_CHMOD_FILE definitions shown in the details above the \"That's all, stop editing!\" line",
		"Save the file and deploy again",
	},
	models.ErrorKindPHPSyntax: {
		"Check the reported line for missing semicolons, brackets or quotes",
		"Make sure every opened brace and parenthesis is closed",
		"Send the error to the discussion to have the code fixed",
	},
	models.ErrorKindPHP: {
		"Check for functions or classes that clash with another plugin or theme",
		"Make sure the code is compatible with the site's PHP and WordPress versions",
		"Send the error to the discussion to have the code fixed",
	},
	models.ErrorKindWordPressCritical: {
		"Check the debug log for the underlying PHP error",
		"Look for a recovery mode email sent to the site administrator",
		"Delete the plugin over FTP/SFTP if the site is no longer reachable",
	},
	models.ErrorKindHTMLResponse: {
		"Open the site in a browser to check that it loads",
		"Make sure permalinks are enabled so the REST API is reachable",
		"Check whether a security plugin or firewall is intercepting REST requests",
	},
	models.ErrorKindEmptyResponse: {
		"The site may have crashed while handling the request; check the debug log",
		"Increase the PHP memory_limit and max_execution_time if the host allows it",
	},
	models.ErrorKindJSONParse: {
		"Make sure the Plugin Generator connector plugin is up to date",
		"Check for other plugins printing output into REST responses",
	},
	models.ErrorKindParse: {
		"Check for PHP notices or warnings printed before the response",
		"Enable WP_DEBUG_LOG and disable WP_DEBUG_DISPLAY on the site",
	},
	models.ErrorKindTimeout: {
		"The site took too long to answer; try again",
		"Check the debug log for slow or failing activation hooks",
	},
	models.ErrorKindActivationWarning: {
		"The plugin files were installed but WordPress could not activate the plugin",
		"Check the debug log below for the activation error",
		"Make sure the main file starts with a valid plugin header",
	},
	models.ErrorKindPackaging: {
		"Make sure the generated code is not empty",
		"Regenerate the plugin code and package it again",
	},
	models.ErrorKindValidation: {
		"Fill in the required connection fields",
		"Check that the site URL starts with http:// or https://",
	},
	models.ErrorKindRemote: {
		"Read the message returned by the site for details",
		"Check the debug log for related errors",
	},
}

var wafSteps = []string{
	"The request appears to have been blocked by a web application firewall (e.g. ModSecurity)",
	"Ask your host to whitelist requests to /wp-json/plugin-generator/v1/",
	"Or temporarily disable the security rule that blocks the request",
}

var connectorMissingSteps = []string{
	"Install and activate the Plugin Generator connector plugin on the site",
	"Re-save permalinks under Settings > Permalinks",
}

// TroubleshootingSteps returns the user-facing steps for an error kind, or
// nil for unknown kinds.
func TroubleshootingSteps(kind models.ErrorKind) []string {
	steps, ok := troubleshooting[kind]
	if !ok {
		return nil
	}
	return append([]string(nil), steps...)
}
